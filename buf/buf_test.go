package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-imgfs/addr"
	"github.com/mit-pdos/go-imgfs/disk"
)

const bs uint64 = 64

func TestInstall(t *testing.T) {
	blk := make([]byte, bs)
	b := MkBuf(addr.MkAddr(3, 8), 4, []byte{1, 2, 3, 4})
	b.Install(blk)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 0}, blk[7:13])

	assert.Panics(t, func() {
		MkBuf(addr.MkAddr(3, bs-2), 4, []byte{1, 2, 3, 4}).Install(blk)
	}, "object must fit in the block")
}

func TestMkBufLoad(t *testing.T) {
	blk := make([]byte, bs)
	blk[16], blk[17] = 0xAA, 0xBB
	b := MkBufLoad(addr.MkAddr(0, 16), 2, blk)
	assert.Equal(t, []byte{0xAA, 0xBB}, b.Data)

	b.Data[0] = 0xCC
	assert.Equal(t, byte(0xCC), blk[16], "buf aliases the block")
}

func TestLoadWriteDirect(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(4 * bs)

	b := MkBuf(addr.MkAddr(2, 10), 3, []byte("abcdef"))
	require.NoError(t, b.WriteDirect(d, bs))

	raw, err := d.ReadAt(2*bs+10, 3)
	require.NoError(t, err)
	assert.Equal([]byte("abc"), raw)
	raw, _ = d.ReadAt(2*bs+13, 1)
	assert.Equal([]byte{0}, raw, "only Sz bytes are written")

	b2, err := Load(d, addr.MkAddr(2, 10), 3, bs)
	require.NoError(t, err)
	assert.Equal([]byte("abc"), b2.Data)

	_, err = Load(d, addr.MkAddr(4, 0), 1, bs)
	assert.Error(err, "load past the end of the image")
}
