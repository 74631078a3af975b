package super

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/disk"
)

func TestDefaultLayout(t *testing.T) {
	assert := assert.New(t)
	sb := DefaultLayout()
	assert.Equal(common.MAGIC, sb.Magic)
	assert.Equal(uint32(1024), sb.BlockSize)
	assert.Equal(uint32(1024), sb.NumBlocks)
	assert.Equal(uint32(128), sb.MaxInodes)
	assert.Equal(uint32(1), sb.BitmapStart)
	assert.Equal(uint32(2), sb.InodeStart)
	assert.Equal(uint32(7), sb.DataStart, "128 inodes of 40 bytes need 5 blocks")
	assert.Equal(uint64(1<<20), sb.DiskSize())
	assert.Equal(uint64(128), sb.BitmapBytes())
	assert.Equal(uint64(1017), sb.NDataBlocks())
	assert.NoError(sb.Validate())
}

func TestMkLayoutLargeBitmap(t *testing.T) {
	sb := MkLayout(512, 8192, 16)
	assert.Equal(t, uint32(1), sb.BitmapStart)
	assert.Equal(t, uint32(3), sb.InodeStart, "8192 bits need two 512-byte blocks")
	assert.Equal(t, uint32(5), sb.DataStart)
	assert.NoError(t, sb.Validate())
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(sb *Superblock)
	}{
		{"bad magic", func(sb *Superblock) { sb.Magic++ }},
		{"zero block size", func(sb *Superblock) { sb.BlockSize = 0 }},
		{"block size not a power of two", func(sb *Superblock) { sb.BlockSize = 1000 }},
		{"block size too small", func(sb *Superblock) { sb.BlockSize = 16 }},
		{"bitmap on superblock", func(sb *Superblock) { sb.BitmapStart = 0 }},
		{"inode table before bitmap", func(sb *Superblock) { sb.InodeStart = sb.BitmapStart }},
		{"data before inode table", func(sb *Superblock) { sb.DataStart = sb.InodeStart }},
		{"data start past the end", func(sb *Superblock) { sb.DataStart = sb.NumBlocks }},
		{"no inodes", func(sb *Superblock) { sb.MaxInodes = 0 }},
		{"inode table too small", func(sb *Superblock) { sb.MaxInodes = 1000 }},
		{"bitmap too small", func(sb *Superblock) { sb.NumBlocks = 1024*8 + 1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sb := DefaultLayout()
			tc.mutate(&sb)
			assert.Error(t, sb.Validate())
		})
	}
}

func TestMkLayoutOversized(t *testing.T) {
	for _, sb := range []Superblock{
		MkLayout(1<<32+1024, 1024, 16),
		MkLayout(1024, 1<<32+1024, 16),
		MkLayout(1024, 1024, 1<<32+16),
	} {
		assert.Error(t, sb.Validate(), "%+v", sb)
	}
}

func TestEncodeLayout(t *testing.T) {
	sb := DefaultLayout()
	b := sb.Encode()
	require.Len(t, b, int(common.SUPERSZ))
	le := binary.LittleEndian
	assert.Equal(t, common.MAGIC, le.Uint32(b[0:]))
	assert.Equal(t, uint32(1024), le.Uint32(b[4:]))
	assert.Equal(t, uint32(1024), le.Uint32(b[8:]))
	assert.Equal(t, uint32(128), le.Uint32(b[12:]))
	assert.Equal(t, uint32(1), le.Uint32(b[16:]))
	assert.Equal(t, uint32(2), le.Uint32(b[20:]))
	assert.Equal(t, uint32(7), le.Uint32(b[24:]))
	assert.Equal(t, sb, Decode(b))
}

func TestManagerFormatFlushLoad(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(1 << 20)
	m := MkManager(d)
	assert.False(m.IsLoaded())

	bad := DefaultLayout()
	bad.BlockSize = 1000
	assert.ErrorIs(m.Format(bad), common.ErrInvalidConfig)
	assert.False(m.IsLoaded(), "a rejected config is not installed")

	cfg := DefaultLayout()
	require.NoError(t, m.Format(cfg))
	assert.True(m.IsLoaded())
	assert.True(m.IsDirty())
	require.NoError(t, m.Flush())
	assert.False(m.IsDirty())

	m2 := MkManager(d)
	require.NoError(t, m2.Load())
	assert.True(m2.IsLoaded())
	assert.False(m2.IsDirty())
	assert.Equal(cfg, m2.Get())
}

func TestFlushOnlyWhenDirty(t *testing.T) {
	d := disk.NewMemDisk(1 << 20)
	m := MkManager(d)
	require.NoError(t, m.Format(DefaultLayout()))
	require.NoError(t, m.Flush())

	// clobber block 0 behind the manager's back; a clean flush must not
	// rewrite it
	require.NoError(t, d.WriteAt(0, make([]byte, common.SUPERSZ)))
	require.NoError(t, m.Flush())
	raw, _ := d.ReadAt(0, 4)
	assert.Equal(t, []byte{0, 0, 0, 0}, raw)
}

func TestLoadCorrupt(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(1 << 20)
	m := MkManager(d)
	assert.ErrorIs(m.Load(), common.ErrCorruptSuperblock, "zeroed image")
	assert.False(m.IsLoaded())

	sb := DefaultLayout()
	sb.DataStart = sb.NumBlocks
	require.NoError(t, d.WriteAt(0, sb.Encode()))
	assert.ErrorIs(m.Load(), common.ErrCorruptSuperblock, "bad region")
	assert.Equal(Superblock{}, m.Get(), "nothing is loaded after a failure")

	tiny := disk.NewMemDisk(4)
	assert.ErrorIs(MkManager(tiny).Load(), common.ErrCorruptSuperblock)
}

func TestNoDisk(t *testing.T) {
	m := MkManager(nil)
	assert.ErrorIs(t, m.Load(), common.ErrNotMounted)
	assert.ErrorIs(t, m.Flush(), common.ErrNotMounted)
}
