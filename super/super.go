// Package super owns the superblock: the layout parameters of an image.
//
// Block 0 holds a fixed 28-byte record (seven little-endian uint32s); the
// rest of the block is zero. The manager keeps the single in-memory copy for
// a mount session and tracks whether it needs to be written back.
package super

import (
	"fmt"
	"math"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-imgfs/addr"
	"github.com/mit-pdos/go-imgfs/buf"
	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/disk"
	"github.com/mit-pdos/go-imgfs/util"
)

type Superblock struct {
	Magic       uint32
	BlockSize   uint32
	NumBlocks   uint32
	MaxInodes   uint32
	BitmapStart uint32 // block index of the free-space bitmap
	InodeStart  uint32 // block index of the inode table
	DataStart   uint32 // block index of the first data block
}

// MkLayout computes a superblock for an image of nblocks blocks of size bs
// with room for ninodes inodes: the bitmap follows the superblock, the inode
// table follows the bitmap and the data region takes the rest. Regions are as
// small as possible. Parameters that do not fit the on-disk fields give a
// layout without regions, which fails Validate.
func MkLayout(bs uint64, nblocks uint64, ninodes uint64) Superblock {
	sb := Superblock{
		Magic:       common.MAGIC,
		BlockSize:   uint32(bs),
		NumBlocks:   uint32(nblocks),
		MaxInodes:   uint32(ninodes),
		BitmapStart: uint32(common.BITMAPBLK),
	}
	if bs == 0 || bs > math.MaxUint32 || nblocks > math.MaxUint32 || ninodes > math.MaxUint32 {
		return sb
	}
	if util.MulOverflows(ninodes, common.INODESZ) {
		return sb
	}
	nbitmap := util.RoundUp(util.RoundUp(nblocks, 8), bs)
	ninodeblk := util.RoundUp(ninodes*common.INODESZ, bs)
	if nbitmap+ninodeblk > math.MaxUint32-uint64(sb.BitmapStart) {
		return sb
	}
	sb.InodeStart = sb.BitmapStart + uint32(nbitmap)
	sb.DataStart = sb.InodeStart + uint32(ninodeblk)
	return sb
}

// DefaultLayout is a 1 MiB image of 1 KiB blocks with 128 inodes.
func DefaultLayout() Superblock {
	return MkLayout(common.BLOCKSZ, common.NBLOCKS, common.NINODES)
}

func (sb Superblock) BlockSz() uint64 {
	return uint64(sb.BlockSize)
}

// DiskSize is the number of bytes the layout covers.
func (sb Superblock) DiskSize() uint64 {
	return uint64(sb.NumBlocks) * uint64(sb.BlockSize)
}

// BitmapBytes is the size of the free-space bitmap: one bit per block.
func (sb Superblock) BitmapBytes() uint64 {
	return util.RoundUp(uint64(sb.NumBlocks), 8)
}

func (sb Superblock) NDataBlocks() uint64 {
	return uint64(sb.NumBlocks) - uint64(sb.DataStart)
}

func isPow2(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// Validate checks the layout invariants of sb.
func (sb Superblock) Validate() error {
	if sb.Magic != common.MAGIC {
		return fmt.Errorf("bad magic %#08x", sb.Magic)
	}
	if !isPow2(sb.BlockSize) {
		return fmt.Errorf("block size %d is not a power of two", sb.BlockSize)
	}
	if uint64(sb.BlockSize) < common.DIRENTSZ {
		return fmt.Errorf("block size %d is smaller than a directory entry", sb.BlockSize)
	}
	if sb.BitmapStart < uint32(common.BITMAPBLK) {
		return fmt.Errorf("bitmap overlaps the superblock")
	}
	if !(sb.BitmapStart < sb.InodeStart && sb.InodeStart < sb.DataStart) {
		return fmt.Errorf("region ordering invalid: bitmap %d inodes %d data %d",
			sb.BitmapStart, sb.InodeStart, sb.DataStart)
	}
	if sb.DataStart >= sb.NumBlocks {
		return fmt.Errorf("data start %d out of range (%d blocks)", sb.DataStart, sb.NumBlocks)
	}
	if sb.MaxInodes == 0 {
		return fmt.Errorf("no inodes")
	}
	if util.MulOverflows(uint64(sb.NumBlocks), uint64(sb.BlockSize)) {
		return fmt.Errorf("image size overflows")
	}
	bs := uint64(sb.BlockSize)
	if uint64(sb.InodeStart-sb.BitmapStart)*bs < sb.BitmapBytes() {
		return fmt.Errorf("bitmap region too small for %d blocks", sb.NumBlocks)
	}
	if uint64(sb.DataStart-sb.InodeStart)*bs < uint64(sb.MaxInodes)*common.INODESZ {
		return fmt.Errorf("inode region too small for %d inodes", sb.MaxInodes)
	}
	return nil
}

func (sb Superblock) Encode() []byte {
	enc := marshal.NewEnc(common.SUPERSZ)
	enc.PutInt32(sb.Magic)
	enc.PutInt32(sb.BlockSize)
	enc.PutInt32(sb.NumBlocks)
	enc.PutInt32(sb.MaxInodes)
	enc.PutInt32(sb.BitmapStart)
	enc.PutInt32(sb.InodeStart)
	enc.PutInt32(sb.DataStart)
	return enc.Finish()
}

func Decode(data []byte) Superblock {
	dec := marshal.NewDec(data)
	var sb Superblock
	sb.Magic = dec.GetInt32()
	sb.BlockSize = dec.GetInt32()
	sb.NumBlocks = dec.GetInt32()
	sb.MaxInodes = dec.GetInt32()
	sb.BitmapStart = dec.GetInt32()
	sb.InodeStart = dec.GetInt32()
	sb.DataStart = dec.GetInt32()
	return sb
}

// Manager holds the superblock of one mount session.
type Manager struct {
	d      disk.Disk
	sb     Superblock
	loaded bool
	dirty  bool
}

func MkManager(d disk.Disk) *Manager {
	return &Manager{d: d}
}

// Format replaces the in-memory superblock with cfg. The new superblock is
// written by the next Flush.
func (m *Manager) Format(cfg Superblock) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("formatting superblock: %w: %v", common.ErrInvalidConfig, err)
	}
	m.sb = cfg
	m.loaded = true
	m.dirty = true
	util.DPrintf(1, "super: new config (block_size=%d, nblocks=%d, max_inodes=%d)\n",
		cfg.BlockSize, cfg.NumBlocks, cfg.MaxInodes)
	return nil
}

// Load reads and validates the superblock in block 0.
func (m *Manager) Load() error {
	m.sb = Superblock{}
	m.loaded = false
	m.dirty = false
	if m.d == nil {
		return fmt.Errorf("loading superblock: %w", common.ErrNotMounted)
	}
	data, err := m.d.ReadAt(0, common.SUPERSZ)
	if err != nil {
		return fmt.Errorf("loading superblock: %w: %v", common.ErrCorruptSuperblock, err)
	}
	sb := Decode(data)
	if err := sb.Validate(); err != nil {
		util.DPrintf(0, "super: invalid superblock: %v\n", err)
		return fmt.Errorf("loading superblock: %w: %v", common.ErrCorruptSuperblock, err)
	}
	m.sb = sb
	m.loaded = true
	util.DPrintf(1, "super: loaded (block_size=%d, nblocks=%d, max_inodes=%d)\n",
		sb.BlockSize, sb.NumBlocks, sb.MaxInodes)
	return nil
}

// Flush writes the superblock back if it changed.
func (m *Manager) Flush() error {
	if m.d == nil || !m.loaded {
		return fmt.Errorf("flushing superblock: %w", common.ErrNotMounted)
	}
	if !m.dirty {
		return nil
	}
	b := buf.MkBuf(addr.MkBlockAddr(0), common.SUPERSZ, m.sb.Encode())
	if err := b.WriteDirect(m.d, m.sb.BlockSz()); err != nil {
		return fmt.Errorf("flushing superblock: %w", err)
	}
	m.dirty = false
	return nil
}

func (m *Manager) Get() Superblock {
	return m.sb
}

func (m *Manager) IsLoaded() bool {
	return m.loaded
}

func (m *Manager) IsDirty() bool {
	return m.dirty
}
