package addr

import (
	"github.com/mit-pdos/go-imgfs/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a byte offset). The size of the
// object is determined by the context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bytes
}

// Flatid is the byte offset of the object within the image.
func (a Addr) Flatid(bs uint64) uint64 {
	return uint64(a.Blkno)*bs + a.Off
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkRecAddr locates the n-th record of size recsz in a region that starts at
// block start. Records are packed back to back and may straddle blocks.
func MkRecAddr(start common.Bnum, n uint64, recsz uint64, bs uint64) Addr {
	flat := uint64(start)*bs + n*recsz
	return MkAddr(common.Bnum(flat/bs), flat%bs)
}

// MkBlockAddr is the address of the start of block blkno.
func MkBlockAddr(blkno common.Bnum) Addr {
	return MkAddr(blkno, 0)
}
