package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/disk"
	"github.com/mit-pdos/go-imgfs/super"
)

// 64 blocks of 64 bytes: superblock, 1 bitmap block, 3 inode blocks, data
// from block 5
func mkTestAlloc(t *testing.T) (disk.Disk, super.Superblock, *Alloc) {
	sb := super.MkLayout(64, 64, 4)
	require.Equal(t, uint32(5), sb.DataStart)
	d := disk.NewMemDisk(sb.DiskSize())
	a := MkAlloc(d, sb)
	a.Clear()
	return d, sb, a
}

func TestPopCnt(t *testing.T) {
	assert.Equal(t, uint64(0), popCnt(0))
	assert.Equal(t, uint64(1), popCnt(1))
	assert.Equal(t, uint64(1), popCnt(2))
	assert.Equal(t, uint64(2), popCnt(3))
	assert.Equal(t, uint64(8), popCnt(255))
}

func TestAlloc(t *testing.T) {
	assert := assert.New(t)
	_, _, a := mkTestAlloc(t)

	assert.Equal(uint64(59), a.NumFree(), "every data block should be initially free")

	n, err := a.AllocNum()
	assert.NoError(err)
	assert.Equal(common.Bnum(5), n, "first fit starts at the data region")

	n2, err := a.AllocNum()
	assert.NoError(err)
	assert.NotEqual(n, n2)
	assert.Equal(uint64(57), a.NumFree(), "should have used 2 blocks")

	free, _ := a.IsFree(n)
	assert.False(free)
	free, _ = a.IsFree(n2)
	assert.False(free)

	assert.NoError(a.FreeNum(n))
	assert.Equal(uint64(58), a.NumFree(), "should have freed")
	n3, _ := a.AllocNum()
	assert.Equal(n, n3, "freed block is reused first")
}

func TestAllocExclusive(t *testing.T) {
	_, sb, a := mkTestAlloc(t)
	seen := make(map[common.Bnum]bool)
	for i := uint64(0); i < sb.NDataBlocks(); i++ {
		n, err := a.AllocNum()
		require.NoError(t, err)
		assert.False(t, seen[n], "block %d allocated twice", n)
		assert.GreaterOrEqual(t, n, common.Bnum(sb.DataStart))
		assert.Less(t, n, common.Bnum(sb.NumBlocks))
		seen[n] = true
	}
	_, err := a.AllocNum()
	assert.ErrorIs(t, err, common.ErrOutOfSpace)
	assert.Equal(t, uint64(0), a.NumFree())

	assert.NoError(t, a.FreeNum(40))
	n, err := a.AllocNum()
	assert.NoError(t, err)
	assert.Equal(t, common.Bnum(40), n, "the only free block")
}

func TestFreeMisuse(t *testing.T) {
	assert := assert.New(t)
	_, _, a := mkTestAlloc(t)
	n, _ := a.AllocNum()

	assert.NoError(a.FreeNum(n))
	assert.NoError(a.FreeNum(n), "double free is ignored")
	assert.Equal(uint64(59), a.NumFree())

	assert.NoError(a.FreeNum(0), "metadata blocks are never freed")
	assert.NoError(a.FreeNum(1000), "out of range")
	free, err := a.IsFree(2)
	assert.NoError(err)
	assert.False(free, "metadata blocks are never free")
	free, _ = a.IsFree(1000)
	assert.False(free)
}

func TestNotLoaded(t *testing.T) {
	sb := super.MkLayout(64, 64, 4)
	a := MkAlloc(disk.NewMemDisk(sb.DiskSize()), sb)
	_, err := a.AllocNum()
	assert.ErrorIs(t, err, common.ErrNotLoaded)
	assert.ErrorIs(t, a.FreeNum(5), common.ErrNotLoaded)
	_, err = a.IsFree(5)
	assert.ErrorIs(t, err, common.ErrNotLoaded)
	assert.ErrorIs(t, a.Flush(), common.ErrNotLoaded)
	assert.Equal(t, uint64(0), a.NumFree())
}

func TestFlushLoad(t *testing.T) {
	assert := assert.New(t)
	d, sb, a := mkTestAlloc(t)
	n, _ := a.AllocNum()
	n2, _ := a.AllocNum()

	a2 := MkAlloc(d, sb)
	require.NoError(t, a2.Load())
	free, _ := a2.IsFree(n)
	assert.True(free, "changes are in memory until flushed")

	require.NoError(t, a.Flush())
	raw, err := d.ReadAt(uint64(sb.BitmapStart)*64, 1)
	require.NoError(t, err)
	assert.Equal(byte(1<<5|1<<6), raw[0], "blocks 5 and 6 are bits 5 and 6 of byte 0")

	require.NoError(t, a2.Load())
	free, _ = a2.IsFree(n)
	assert.False(free)
	free, _ = a2.IsFree(n2)
	assert.False(free)
	assert.Equal(uint64(57), a2.NumFree())
}
