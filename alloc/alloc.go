package alloc

import (
	"fmt"

	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/disk"
	"github.com/mit-pdos/go-imgfs/super"
	"github.com/mit-pdos/go-imgfs/util"
)

// Alloc uses a bit map to allocate and free data blocks. Bit n (bit n%8 of
// byte n/8) corresponds to block n; only blocks in [dataStart, nblocks) are
// ever handed out.
//
// Allocation and freeing change only the in-memory bitmap. Callers persist
// it with Flush, so a batch of changes costs one write.
//
// Allocation scans linearly from dataStart and returns the lowest free
// block. That is O(nblocks) per call, fine for the small images this
// filesystem targets.
type Alloc struct {
	d         disk.Disk
	start     common.Bnum // first bitmap block
	bs        uint64
	dataStart common.Bnum
	nblocks   uint64
	bitmap    []byte
	loaded    bool
}

func MkAlloc(d disk.Disk, sb super.Superblock) *Alloc {
	a := &Alloc{
		d:         d,
		start:     common.Bnum(sb.BitmapStart),
		bs:        sb.BlockSz(),
		dataStart: common.Bnum(sb.DataStart),
		nblocks:   uint64(sb.NumBlocks),
	}
	return a
}

func (a *Alloc) alloc() {
	if a.bitmap == nil {
		a.bitmap = make([]byte, util.RoundUp(a.nblocks, 8))
	}
}

func (a *Alloc) requireLoaded() error {
	if a.bitmap == nil || !a.loaded {
		return common.ErrNotLoaded
	}
	return nil
}

func (a *Alloc) valid(bn common.Bnum) bool {
	return bn >= a.dataStart && bn < a.nblocks
}

func (a *Alloc) isSet(bn common.Bnum) bool {
	return a.bitmap[bn/8]&(1<<(bn%8)) != 0
}

// Load reads the bitmap from the image.
func (a *Alloc) Load() error {
	a.alloc()
	err := a.d.ReadTo(uint64(a.start)*a.bs, a.bitmap)
	if err != nil {
		a.loaded = false
		return fmt.Errorf("loading bitmap: %w", err)
	}
	a.loaded = true
	util.DPrintf(1, "alloc: loaded bitmap (%d bytes)\n", len(a.bitmap))
	return nil
}

// Clear marks every block free. Used when formatting; it does not require a
// prior Load.
func (a *Alloc) Clear() {
	a.alloc()
	for i := range a.bitmap {
		a.bitmap[i] = 0
	}
	a.loaded = true
}

// Flush writes the in-memory bitmap to the image.
func (a *Alloc) Flush() error {
	if err := a.requireLoaded(); err != nil {
		return fmt.Errorf("flushing bitmap: %w", err)
	}
	err := a.d.WriteAt(uint64(a.start)*a.bs, a.bitmap)
	if err != nil {
		return fmt.Errorf("flushing bitmap: %w", err)
	}
	util.DPrintf(5, "alloc: flushed bitmap\n")
	return nil
}

func (a *Alloc) AllocNum() (common.Bnum, error) {
	if err := a.requireLoaded(); err != nil {
		return common.NULLBNUM, err
	}
	for bn := a.dataStart; bn < a.nblocks; bn++ {
		if !a.isSet(bn) {
			a.bitmap[bn/8] |= 1 << (bn % 8)
			util.DPrintf(10, "AllocNum: %d\n", bn)
			return bn, nil
		}
	}
	util.DPrintf(0, "AllocNum: no free data block; disk is full\n")
	return common.NULLBNUM, common.ErrOutOfSpace
}

// FreeNum marks bn free. Freeing a block outside the data region or one that
// is already free is logged and otherwise ignored.
func (a *Alloc) FreeNum(bn common.Bnum) error {
	if err := a.requireLoaded(); err != nil {
		return err
	}
	if !a.valid(bn) {
		util.DPrintf(0, "FreeNum: invalid block number %d\n", bn)
		return nil
	}
	if !a.isSet(bn) {
		util.DPrintf(0, "FreeNum: double free of block %d\n", bn)
		return nil
	}
	a.bitmap[bn/8] &= ^byte(1 << (bn % 8))
	util.DPrintf(10, "FreeNum: %d\n", bn)
	return nil
}

// IsFree reports whether bn is an unallocated data block. Blocks outside the
// data region are never free.
func (a *Alloc) IsFree(bn common.Bnum) (bool, error) {
	if err := a.requireLoaded(); err != nil {
		return false, err
	}
	if !a.valid(bn) {
		return false, nil
	}
	return !a.isSet(bn), nil
}

func popCnt(b byte) uint64 {
	var n uint64
	for b != 0 {
		n += uint64(b & 1)
		b = b >> 1
	}
	return n
}

// NumFree counts the free data blocks; 0 if the bitmap is not loaded.
func (a *Alloc) NumFree() uint64 {
	if a.requireLoaded() != nil {
		return 0
	}
	var used uint64
	bn := a.dataStart
	for bn < a.nblocks {
		if bn%8 == 0 && bn+8 <= a.nblocks {
			used += popCnt(a.bitmap[bn/8])
			bn += 8
			continue
		}
		if a.isSet(bn) {
			used++
		}
		bn++
	}
	return a.nblocks - uint64(a.dataStart) - used
}
