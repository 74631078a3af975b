// buf manages sub-block disk objects (the superblock, inode records and
// directory entries) that live at byte offsets inside image blocks
package buf

import (
	"fmt"

	"github.com/mit-pdos/go-imgfs/addr"
	"github.com/mit-pdos/go-imgfs/disk"
	"github.com/mit-pdos/go-imgfs/util"
)

// A Buf is an in-memory copy of a disk object
type Buf struct {
	Addr  addr.Addr
	Sz    uint64 // number of bytes
	Data  []byte
}

func MkBuf(addr addr.Addr, sz uint64, data []byte) *Buf {
	b := &Buf{
		Addr: addr,
		Sz:   sz,
		Data: data,
	}
	return b
}

// Load the object at addr from the image
func Load(d disk.Disk, addr addr.Addr, sz uint64, bs uint64) (*Buf, error) {
	data, err := d.ReadAt(addr.Flatid(bs), sz)
	if err != nil {
		return nil, fmt.Errorf("loading %v: %w", addr, err)
	}
	util.DPrintf(15, "Load: %v sz %d\n", addr, sz)
	return MkBuf(addr, sz, data), nil
}

// Load the bytes of an in-memory disk block into a new buf, as specified by
// addr. The buf aliases blk.
func MkBufLoad(addr addr.Addr, sz uint64, blk []byte) *Buf {
	data := blk[addr.Off : addr.Off+sz]
	return MkBuf(addr, sz, data)
}

// Install the bytes from buf into blk, the in-memory copy of the block
// containing buf.
func (buf *Buf) Install(blk []byte) {
	if buf.Addr.Off+buf.Sz > uint64(len(blk)) {
		panic("Install: object straddles block")
	}
	util.DPrintf(20, "%v: install\n", buf.Addr)
	copy(blk[buf.Addr.Off:], buf.Data[:buf.Sz])
}

// WriteDirect writes buf to its location in the image.
func (buf *Buf) WriteDirect(d disk.Disk, bs uint64) error {
	err := d.WriteAt(buf.Addr.Flatid(bs), buf.Data[:buf.Sz])
	if err != nil {
		return fmt.Errorf("writing %v: %w", buf.Addr, err)
	}
	util.DPrintf(15, "WriteDirect: %v sz %d\n", buf.Addr, buf.Sz)
	return nil
}
