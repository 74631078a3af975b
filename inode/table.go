package inode

import (
	"fmt"

	"github.com/mit-pdos/go-imgfs/addr"
	"github.com/mit-pdos/go-imgfs/buf"
	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/disk"
	"github.com/mit-pdos/go-imgfs/super"
	"github.com/mit-pdos/go-imgfs/util"
)

// Table is the fixed-size array of inode records that starts at the
// superblock's inode_start. A slot is free when its valid flag is clear;
// there is no separate free list.
type Table struct {
	d     disk.Disk
	start common.Bnum
	n     uint64
	bs    uint64
}

func MkTable(d disk.Disk, sb super.Superblock) *Table {
	return &Table{
		d:     d,
		start: common.Bnum(sb.InodeStart),
		n:     uint64(sb.MaxInodes),
		bs:    sb.BlockSz(),
	}
}

func (it *Table) NInode() uint64 {
	return it.n
}

func (it *Table) inum2addr(inum common.Inum) addr.Addr {
	return addr.MkRecAddr(it.start, uint64(inum), common.INODESZ, it.bs)
}

func (it *Table) checkBounds(inum common.Inum) error {
	if uint64(inum) >= it.n {
		util.DPrintf(0, "inode: invalid inode number %d\n", inum)
		return fmt.Errorf("inode %d: %w", inum, common.ErrIndexOutOfRange)
	}
	return nil
}

// Init zero-fills every slot.
func (it *Table) Init() error {
	zero := make([]byte, it.n*common.INODESZ)
	err := it.d.WriteAt(it.inum2addr(0).Flatid(it.bs), zero)
	if err != nil {
		return fmt.Errorf("initializing inode table: %w", err)
	}
	return nil
}

func (it *Table) Read(inum common.Inum) (Inode, error) {
	if err := it.checkBounds(inum); err != nil {
		return Inode{}, err
	}
	b, err := buf.Load(it.d, it.inum2addr(inum), common.INODESZ, it.bs)
	if err != nil {
		return Inode{}, fmt.Errorf("reading inode %d: %w", inum, err)
	}
	ip := Decode(b.Data)
	util.DPrintf(10, "inode: read %d %v\n", inum, &ip)
	return ip, nil
}

func (it *Table) Write(inum common.Inum, ip Inode) error {
	if err := it.checkBounds(inum); err != nil {
		return err
	}
	b := buf.MkBuf(it.inum2addr(inum), common.INODESZ, ip.Encode())
	if err := b.WriteDirect(it.d, it.bs); err != nil {
		return fmt.Errorf("writing inode %d: %w", inum, err)
	}
	util.DPrintf(10, "inode: wrote %d %v\n", inum, &ip)
	return nil
}

// Alloc claims the lowest-numbered free slot. Only the valid flag changes;
// the rest of the old record stays until the caller overwrites it.
func (it *Table) Alloc() (common.Inum, error) {
	// one read for the whole table rather than one per slot
	tbl, err := it.d.ReadAt(it.inum2addr(0).Flatid(it.bs), it.n*common.INODESZ)
	if err != nil {
		return 0, fmt.Errorf("allocating inode: %w", err)
	}
	for i := uint64(0); i < it.n; i++ {
		ip := Decode(tbl[i*common.INODESZ : (i+1)*common.INODESZ])
		if !ip.IsValid() {
			ip.SetValid()
			inum := common.Inum(i)
			if err := it.Write(inum, ip); err != nil {
				return 0, fmt.Errorf("allocating inode: %w", err)
			}
			util.DPrintf(5, "inode: allocated %d\n", inum)
			return inum, nil
		}
	}
	util.DPrintf(0, "inode: no free inode\n")
	return 0, fmt.Errorf("allocating inode: %w", common.ErrNoFreeInode)
}

// Free clears the valid flag of inum. Other fields are left as they are.
func (it *Table) Free(inum common.Inum) error {
	ip, err := it.Read(inum)
	if err != nil {
		return err
	}
	ip.SetInvalid()
	if err := it.Write(inum, ip); err != nil {
		return err
	}
	util.DPrintf(5, "inode: freed %d\n", inum)
	return nil
}
