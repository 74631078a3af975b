package disk

import (
	"fmt"

	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/util"
)

// Disk provides byte-addressed access to a filesystem image
type Disk interface {
	// ReadAt reads n bytes starting at byte offset off
	//
	// Expects off+n <= Size().
	ReadAt(off uint64, n uint64) ([]byte, error)

	// ReadTo reads len(b) bytes starting at off and stores the result in b
	ReadTo(off uint64, b []byte) error

	// WriteAt updates len(v) bytes starting at off
	//
	// Expects off+len(v) <= Size().
	WriteAt(off uint64, v []byte) error

	// Size reports how big the image is, in bytes
	Size() (uint64, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

func checkRange(size uint64, off uint64, n uint64) error {
	if util.SumOverflows(off, n) || off+n > size {
		return fmt.Errorf("%w: out-of-bounds access at %d+%d (size %d)",
			common.ErrIO, off, n, size)
	}
	return nil
}
