package disk

import (
	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-imgfs/util"
)

var _ Disk = blockDisk{}

// blockDisk exposes a fixed-block goose disk as a byte-addressed image.
// Writes that cover only part of a block are read-modify-write.
type blockDisk struct {
	d gdisk.Disk
}

func FromBlockDisk(d gdisk.Disk) Disk {
	return blockDisk{d: d}
}

func (d blockDisk) Size() (uint64, error) {
	return d.d.Size() * gdisk.BlockSize, nil
}

func (d blockDisk) ReadTo(off uint64, buf []byte) error {
	sz, _ := d.Size()
	if err := checkRange(sz, off, uint64(len(buf))); err != nil {
		return err
	}
	var done uint64
	for done < uint64(len(buf)) {
		a := (off + done) / gdisk.BlockSize
		boff := (off + done) % gdisk.BlockSize
		blk := d.d.Read(a)
		done += uint64(copy(buf[done:], blk[boff:]))
	}
	return nil
}

func (d blockDisk) ReadAt(off uint64, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	err := d.ReadTo(off, buf)
	return buf, err
}

func (d blockDisk) WriteAt(off uint64, v []byte) error {
	sz, _ := d.Size()
	if err := checkRange(sz, off, uint64(len(v))); err != nil {
		return err
	}
	var done uint64
	for done < uint64(len(v)) {
		a := (off + done) / gdisk.BlockSize
		boff := (off + done) % gdisk.BlockSize
		n := util.Min(gdisk.BlockSize-boff, uint64(len(v))-done)
		if n == gdisk.BlockSize {
			d.d.Write(a, v[done:done+n])
		} else {
			blk := d.d.Read(a)
			copy(blk[boff:], v[done:done+n])
			d.d.Write(a, blk)
		}
		done += n
	}
	return nil
}

func (d blockDisk) Barrier() error {
	d.d.Barrier()
	return nil
}

func (d blockDisk) Close() error {
	d.d.Close()
	return nil
}
