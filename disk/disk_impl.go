package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/util"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd   int
	path string
	size uint64
}

// Open opens an existing image file.
func Open(path string) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, fmt.Errorf("opening %s: %w", path, common.ErrNotFound)
		}
		return nil, fmt.Errorf("opening %s: %w: %v", path, common.ErrIO, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("opening %s: %w: %v", path, common.ErrIO, err)
	}
	util.DPrintf(1, "Open: %s size %d\n", path, stat.Size)
	return &fileDisk{fd: fd, path: path, size: uint64(stat.Size)}, nil
}

// Create creates (or truncates) the image file at path and sizes it to size
// bytes.
func Create(path string, size uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w: %v", path, common.ErrCreateFailed, err)
	}
	err = unix.Ftruncate(fd, int64(size))
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("creating %s: %w: %v", path, common.ErrCreateFailed, err)
	}
	util.DPrintf(1, "Create: %s size %d\n", path, size)
	return &fileDisk{fd: fd, path: path, size: size}, nil
}

func (d *fileDisk) ReadTo(off uint64, buf []byte) error {
	if err := checkRange(d.size, off, uint64(len(buf))); err != nil {
		return err
	}
	for done := 0; done < len(buf); {
		n, err := unix.Pread(d.fd, buf[done:], int64(off)+int64(done))
		if err != nil {
			return fmt.Errorf("reading %s at %d: %w: %v", d.path, off, common.ErrIO, err)
		}
		if n == 0 {
			return fmt.Errorf("reading %s at %d: %w: short read", d.path, off, common.ErrIO)
		}
		done += n
	}
	util.DPrintf(20, "read: %v+%v\n", off, len(buf))
	return nil
}

func (d *fileDisk) ReadAt(off uint64, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	err := d.ReadTo(off, buf)
	return buf, err
}

func (d *fileDisk) WriteAt(off uint64, v []byte) error {
	if err := checkRange(d.size, off, uint64(len(v))); err != nil {
		return err
	}
	for done := 0; done < len(v); {
		n, err := unix.Pwrite(d.fd, v[done:], int64(off)+int64(done))
		if err != nil {
			return fmt.Errorf("writing %s at %d: %w: %v", d.path, off, common.ErrIO, err)
		}
		done += n
	}
	util.DPrintf(20, "write: %v+%v\n", off, len(v))
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.size, nil
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return fmt.Errorf("syncing %s: %w: %v", d.path, common.ErrIO, err)
	}
	util.DPrintf(20, "barrier\n")
	return nil
}

func (d *fileDisk) Close() error {
	err := unix.Close(d.fd)
	if err != nil {
		return fmt.Errorf("closing %s: %w: %v", d.path, common.ErrIO, err)
	}
	return nil
}

/////////////////////////

var _ Disk = (*memDisk)(nil)

type memDisk struct {
	l    *sync.RWMutex
	data []byte
}

func NewMemDisk(size uint64) Disk {
	return &memDisk{l: new(sync.RWMutex), data: make([]byte, size)}
}

func (d *memDisk) ReadTo(off uint64, buf []byte) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if err := checkRange(uint64(len(d.data)), off, uint64(len(buf))); err != nil {
		return err
	}
	copy(buf, d.data[off:])
	return nil
}

func (d *memDisk) ReadAt(off uint64, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	err := d.ReadTo(off, buf)
	return buf, err
}

func (d *memDisk) WriteAt(off uint64, v []byte) error {
	d.l.Lock()
	defer d.l.Unlock()
	if err := checkRange(uint64(len(d.data)), off, uint64(len(v))); err != nil {
		return err
	}
	copy(d.data[off:], v)
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.data)), nil
}

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
