// Package dir stores directory contents in the data blocks of a directory
// inode.
//
// Entries are packed in order: entry i lives in the inode's block i/epb at
// slot i%epb, where epb is the number of entries per block. The inode's size
// is the entry count, so a directory of n entries uses ceil(n/epb) blocks
// (at least one; directories are created with their first block).
package dir

import (
	"fmt"

	"github.com/mit-pdos/go-imgfs/addr"
	"github.com/mit-pdos/go-imgfs/alloc"
	"github.com/mit-pdos/go-imgfs/buf"
	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/disk"
	"github.com/mit-pdos/go-imgfs/inode"
	"github.com/mit-pdos/go-imgfs/super"
	"github.com/mit-pdos/go-imgfs/util"
)

type Dir struct {
	d      disk.Disk
	inodes *inode.Table
	alloc  *alloc.Alloc
	bs     uint64
	epb    uint64
}

func MkDir(d disk.Disk, inodes *inode.Table, a *alloc.Alloc, sb super.Superblock) *Dir {
	return &Dir{
		d:      d,
		inodes: inodes,
		alloc:  a,
		bs:     sb.BlockSz(),
		epb:    common.DirentsPerBlock(sb.BlockSz()),
	}
}

// EntriesPerBlock is the number of entries one directory block holds.
func (dir *Dir) EntriesPerBlock() uint64 {
	return dir.epb
}

func (dir *Dir) readDir(inum common.Inum) (inode.Inode, error) {
	ip, err := dir.inodes.Read(inum)
	if err != nil {
		return ip, err
	}
	if !ip.IsValid() || !ip.IsDir() {
		return ip, fmt.Errorf("inode %d: %w", inum, common.ErrNotDirectory)
	}
	return ip, nil
}

func (dir *Dir) blockOf(ip *inode.Inode, i uint64) (common.Bnum, error) {
	pg := i / dir.epb
	if pg >= common.NDIRECT || ip.Blocks[pg] == common.NULLBNUM {
		return common.NULLBNUM, fmt.Errorf("entry %d has no block: %w", i, common.ErrIndexOutOfRange)
	}
	return ip.Blocks[pg], nil
}

// putEntry overwrites slot of block bn with e: read the block, install the
// entry, write the block back.
func (dir *Dir) putEntry(bn common.Bnum, slot uint64, e Entry) error {
	blk, err := buf.Load(dir.d, addr.MkBlockAddr(bn), dir.bs, dir.bs)
	if err != nil {
		return err
	}
	ent := buf.MkBuf(addr.MkAddr(bn, slot*common.DIRENTSZ), common.DIRENTSZ, EncodeEntry(e))
	ent.Install(blk.Data)
	return blk.WriteDirect(dir.d, dir.bs)
}

// Append adds e at the end of directory parent's entry list, growing the
// directory by a block when the last one is full.
//
// A new block is taken from the allocator but the bitmap is not flushed;
// that is left to the caller.
func (dir *Dir) Append(parent common.Inum, e Entry) error {
	ip, err := dir.readDir(parent)
	if err != nil {
		return fmt.Errorf("adding %q: %w", e.Name, err)
	}
	util.DPrintf(5, "dir: adding entry (parent %d name %q inode %d)\n", parent, e.Name, e.Inum)
	n := ip.Size
	slot := n % dir.epb
	pg := n / dir.epb
	if n == 0 {
		if ip.Blocks[0] == common.NULLBNUM {
			// directories are created with a block; tolerate one without
			bn, err := dir.alloc.AllocNum()
			if err != nil {
				return fmt.Errorf("adding %q: %w", e.Name, err)
			}
			ip.Blocks[0] = bn
		}
		ent := buf.MkBuf(addr.MkAddr(ip.Blocks[0], 0), common.DIRENTSZ, EncodeEntry(e))
		if err := ent.WriteDirect(dir.d, dir.bs); err != nil {
			return fmt.Errorf("adding %q: %w", e.Name, err)
		}
	} else if slot == 0 {
		if pg >= common.NDIRECT {
			util.DPrintf(0, "dir: directory %d reached %d entries\n", parent, n)
			return fmt.Errorf("adding %q to inode %d: %w", e.Name, parent, common.ErrDirectoryFull)
		}
		bn, err := dir.alloc.AllocNum()
		if err != nil {
			return fmt.Errorf("adding %q: %w", e.Name, err)
		}
		util.DPrintf(5, "dir: directory %d grows to block %d\n", parent, bn)
		ip.Blocks[pg] = bn
		data := make([]byte, dir.bs)
		buf.MkBuf(addr.MkAddr(bn, 0), common.DIRENTSZ, EncodeEntry(e)).Install(data)
		if err := buf.MkBuf(addr.MkBlockAddr(bn), dir.bs, data).WriteDirect(dir.d, dir.bs); err != nil {
			return fmt.Errorf("adding %q: %w", e.Name, err)
		}
	} else {
		bn, err := dir.blockOf(&ip, n)
		if err != nil {
			return fmt.Errorf("adding %q: %w", e.Name, err)
		}
		if err := dir.putEntry(bn, slot, e); err != nil {
			return fmt.Errorf("adding %q: %w", e.Name, err)
		}
	}
	ip.Size = n + 1
	if err := dir.inodes.Write(parent, ip); err != nil {
		return fmt.Errorf("adding %q: %w", e.Name, err)
	}
	return nil
}

func (dir *Dir) scan(ip *inode.Inode, f func(i uint64, e Entry) bool) error {
	var blk []byte
	var bn common.Bnum
	for i := uint64(0); i < ip.Size; i++ {
		slot := i % dir.epb
		if slot == 0 {
			var err error
			bn, err = dir.blockOf(ip, i)
			if err != nil {
				return err
			}
			blk, err = dir.d.ReadAt(addr.MkBlockAddr(bn).Flatid(dir.bs), dir.bs)
			if err != nil {
				return err
			}
		}
		ent := buf.MkBufLoad(addr.MkAddr(bn, slot*common.DIRENTSZ), common.DIRENTSZ, blk)
		if !f(i, DecodeEntry(ent.Data)) {
			break
		}
	}
	return nil
}

// Scan calls f on every entry of directory inum, in order, until f returns
// false.
func (dir *Dir) Scan(inum common.Inum, f func(i uint64, e Entry) bool) error {
	ip, err := dir.readDir(inum)
	if err != nil {
		return fmt.Errorf("scanning directory: %w", err)
	}
	if err := dir.scan(&ip, f); err != nil {
		return fmt.Errorf("scanning directory %d: %w", inum, err)
	}
	return nil
}

// Lookup finds the first entry named name in directory inum.
func (dir *Dir) Lookup(inum common.Inum, name string) (common.Inum, error) {
	var found *Entry
	err := dir.Scan(inum, func(i uint64, e Entry) bool {
		if e.Name == name {
			found = &e
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if found == nil {
		return 0, fmt.Errorf("looking up %q in %d: %w", name, inum, common.ErrPathNotFound)
	}
	return found.Inum, nil
}

// Entries returns the entries of directory inum in storage order.
func (dir *Dir) Entries(inum common.Inum) ([]Entry, error) {
	ents := make([]Entry, 0)
	err := dir.Scan(inum, func(i uint64, e Entry) bool {
		ents = append(ents, e)
		return true
	})
	return ents, err
}

// Remove deletes the entry for child from directory parent. The last entry
// moves into the freed slot, and a trailing block left empty goes back to
// the allocator (the first block always stays). As with Append, the bitmap
// is not flushed.
func (dir *Dir) Remove(parent common.Inum, child common.Inum) error {
	ip, err := dir.readDir(parent)
	if err != nil {
		return fmt.Errorf("removing inode %d: %w", child, err)
	}
	var k uint64
	var last Entry
	found := false
	err = dir.scan(&ip, func(i uint64, e Entry) bool {
		if !found && e.Inum == child {
			k = i
			found = true
		}
		last = e
		return true
	})
	if err != nil {
		return fmt.Errorf("removing inode %d: %w", child, err)
	}
	if !found {
		return fmt.Errorf("removing inode %d from %d: %w", child, parent, common.ErrPathNotFound)
	}
	util.DPrintf(5, "dir: removing entry %d (inode %d) from %d\n", k, child, parent)

	n := ip.Size - 1
	if k != n {
		bn, err := dir.blockOf(&ip, k)
		if err != nil {
			return fmt.Errorf("removing inode %d: %w", child, err)
		}
		if err := dir.putEntry(bn, k%dir.epb, last); err != nil {
			return fmt.Errorf("removing inode %d: %w", child, err)
		}
	}
	if n > 0 && n%dir.epb == 0 {
		pg := n / dir.epb
		if err := dir.alloc.FreeNum(ip.Blocks[pg]); err != nil {
			return fmt.Errorf("removing inode %d: %w", child, err)
		}
		ip.Blocks[pg] = common.NULLBNUM
	}
	ip.Size = n
	if err := dir.inodes.Write(parent, ip); err != nil {
		return fmt.Errorf("removing inode %d: %w", child, err)
	}
	return nil
}
