// Package fs is the filesystem a caller mounts: it ties the superblock,
// allocator, inode table, directories and path resolution together behind
// path-based operations.
//
// One image may be mounted per process at a time. An *Fs is a mount
// session; after Unmount every operation on it fails with ErrNotMounted.
package fs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mit-pdos/go-imgfs/addr"
	"github.com/mit-pdos/go-imgfs/alloc"
	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/dir"
	"github.com/mit-pdos/go-imgfs/disk"
	"github.com/mit-pdos/go-imgfs/inode"
	"github.com/mit-pdos/go-imgfs/namei"
	"github.com/mit-pdos/go-imgfs/super"
	"github.com/mit-pdos/go-imgfs/util"
)

var (
	mountMu sync.Mutex
	current *Fs
)

func claim(fs *Fs) error {
	mountMu.Lock()
	defer mountMu.Unlock()
	if current != nil {
		return common.ErrAlreadyMounted
	}
	current = fs
	return nil
}

func release(fs *Fs) {
	mountMu.Lock()
	defer mountMu.Unlock()
	if current == fs {
		current = nil
	}
}

func isMounted() bool {
	mountMu.Lock()
	defer mountMu.Unlock()
	return current != nil
}

type Fs struct {
	mu      *sync.Mutex
	d       disk.Disk
	super   *super.Manager
	sb      super.Superblock
	alloc   *alloc.Alloc
	inodes  *inode.Table
	dirs    *dir.Dir
	namei   *namei.Resolver
	mounted bool
}

func mkFs(d disk.Disk, sm *super.Manager) *Fs {
	sb := sm.Get()
	a := alloc.MkAlloc(d, sb)
	inodes := inode.MkTable(d, sb)
	dirs := dir.MkDir(d, inodes, a, sb)
	return &Fs{
		mu:     new(sync.Mutex),
		d:      d,
		super:  sm,
		sb:     sb,
		alloc:  a,
		inodes: inodes,
		dirs:   dirs,
		namei:  namei.MkResolver(dirs),
	}
}

// Format writes an empty filesystem with layout cfg to d: the superblock, a
// clear bitmap, an empty inode table, and a root directory (inode 0) that
// owns one data block. Everything else on the image is zeroed.
func Format(d disk.Disk, cfg super.Superblock) error {
	if isMounted() {
		return fmt.Errorf("format: %w", common.ErrAlreadyMounted)
	}
	sm := super.MkManager(d)
	if err := sm.Format(cfg); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	sz, err := d.Size()
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}
	if sz < cfg.DiskSize() {
		return fmt.Errorf("format: %w: image has %d bytes, layout needs %d",
			common.ErrInvalidConfig, sz, cfg.DiskSize())
	}
	util.DPrintf(1, "fs: formatting %d blocks of %d bytes\n", cfg.NumBlocks, cfg.BlockSize)

	bs := cfg.BlockSz()
	zero := make([]byte, bs)
	for bn := uint64(0); bn < uint64(cfg.NumBlocks); bn++ {
		if err := d.WriteAt(addr.MkBlockAddr(bn).Flatid(bs), zero); err != nil {
			return fmt.Errorf("format: zeroing block %d: %w", bn, err)
		}
	}
	if err := sm.Flush(); err != nil {
		return fmt.Errorf("format: %w", err)
	}

	fs := mkFs(d, sm)
	fs.alloc.Clear()
	if err := fs.alloc.Flush(); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	if err := fs.inodes.Init(); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	root, err := fs.inodes.Alloc()
	if err != nil {
		return fmt.Errorf("format: root directory: %w", err)
	}
	bn, err := fs.alloc.AllocNum()
	if err != nil {
		return fmt.Errorf("format: root directory: %w", err)
	}
	ip := inode.Inode{}
	ip.SetValid()
	ip.SetDir()
	ip.Blocks[0] = bn
	if err := fs.inodes.Write(root, ip); err != nil {
		return fmt.Errorf("format: root directory: %w", err)
	}
	if err := fs.alloc.Flush(); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	if err := d.Barrier(); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	return nil
}

// Mount loads the superblock and bitmap of the image on d.
func Mount(d disk.Disk) (*Fs, error) {
	sm := super.MkManager(d)
	if err := sm.Load(); err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	sz, err := d.Size()
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	if sz < sm.Get().DiskSize() {
		return nil, fmt.Errorf("mount: %w: image has %d bytes, superblock says %d",
			common.ErrCorruptSuperblock, sz, sm.Get().DiskSize())
	}
	fs := mkFs(d, sm)
	if err := claim(fs); err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	if err := fs.alloc.Load(); err != nil {
		release(fs)
		return nil, fmt.Errorf("mount: %w", err)
	}
	fs.mounted = true
	util.DPrintf(1, "fs: mounted (%d free blocks)\n", fs.alloc.NumFree())
	return fs, nil
}

// Unmount writes back the superblock and bitmap and ends the session. The
// caller still owns d.
func (fs *Fs) Unmount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return fmt.Errorf("unmount: %w", common.ErrNotMounted)
	}
	if err := fs.super.Flush(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	if err := fs.alloc.Flush(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	if err := fs.d.Barrier(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	fs.mounted = false
	release(fs)
	util.DPrintf(1, "fs: unmounted\n")
	return nil
}

func (fs *Fs) requireMounted() error {
	if !fs.mounted {
		return common.ErrNotMounted
	}
	return nil
}

// Super returns the mounted image's layout.
func (fs *Fs) Super() super.Superblock {
	return fs.sb
}

// NumFree reports how many data blocks are unallocated.
func (fs *Fs) NumFree() uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.alloc.NumFree()
}

// lookupParent resolves the directory that will hold path's last component
// and returns it with that component.
func (fs *Fs) lookupParent(path string) (common.Inum, string, error) {
	name := namei.Base(path)
	if name == "" {
		return 0, "", fmt.Errorf("%w: %q has no name", common.ErrInvalidPath, path)
	}
	parent, err := fs.namei.Resolve(namei.Parent(path))
	if err != nil {
		return 0, "", err
	}
	return parent, name, nil
}

// create makes a new inode named by path and links it into its parent
// directory. Directories, and files created with data, get a data block.
// On failure every inode and block it took is given back, unless only the
// final bitmap write failed: then the file exists and its inode is returned
// with the error.
func (fs *Fs) create(path string, isDir bool, data []byte) (common.Inum, error) {
	parent, name, err := fs.lookupParent(path)
	if err != nil {
		return 0, err
	}
	_, err = fs.dirs.Lookup(parent, name)
	if err == nil {
		return 0, fmt.Errorf("%q: %w", path, common.ErrExists)
	}
	if !errors.Is(err, common.ErrPathNotFound) {
		return 0, err
	}

	inum, err := fs.inodes.Alloc()
	if err != nil {
		return 0, err
	}
	ip := inode.Inode{}
	ip.SetValid()
	if isDir {
		ip.SetDir()
	}
	if isDir || data != nil {
		bn, err := fs.alloc.AllocNum()
		if err != nil {
			fs.undoInode(inum)
			return 0, err
		}
		ip.Blocks[0] = bn
	}
	if data != nil {
		if err := fs.writeBlock(ip.Blocks[0], data); err != nil {
			fs.undo(inum, ip)
			return 0, err
		}
		ip.Size = uint64(len(data))
	}
	if err := fs.inodes.Write(inum, ip); err != nil {
		fs.undo(inum, ip)
		return 0, err
	}
	if err := fs.dirs.Append(parent, dir.Entry{Inum: inum, Name: name}); err != nil {
		fs.undo(inum, ip)
		return 0, err
	}
	// the new file is linked; only the bitmap write failed, and Unmount
	// retries it
	if err := fs.alloc.Flush(); err != nil {
		return inum, err
	}
	util.DPrintf(1, "fs: created %q (inode %d, dir %v) in %d\n", path, inum, isDir, parent)
	return inum, nil
}

func (fs *Fs) undoInode(inum common.Inum) {
	if err := fs.inodes.Free(inum); err != nil {
		util.DPrintf(0, "fs: releasing inode %d: %v\n", inum, err)
	}
}

func (fs *Fs) undo(inum common.Inum, ip inode.Inode) {
	for _, bn := range ip.Blocks {
		if bn != common.NULLBNUM {
			fs.alloc.FreeNum(bn)
		}
	}
	fs.undoInode(inum)
}

// writeBlock stores data at the start of block bn and zeroes the rest.
func (fs *Fs) writeBlock(bn common.Bnum, data []byte) error {
	blk := make([]byte, fs.sb.BlockSz())
	copy(blk, data)
	return fs.d.WriteAt(addr.MkBlockAddr(bn).Flatid(fs.sb.BlockSz()), blk)
}

func (fs *Fs) Mkdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.requireMounted(); err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}
	util.DPrintf(1, "fs: mkdir %q\n", path)
	if _, err := fs.create(namei.Clean(path), true, nil); err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}
	return nil
}

// Mkfile creates an empty file. Its data block is allocated on first write.
func (fs *Fs) Mkfile(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.requireMounted(); err != nil {
		return fmt.Errorf("mkfile %q: %w", path, err)
	}
	util.DPrintf(1, "fs: mkfile %q\n", path)
	if _, err := fs.create(namei.Clean(path), false, nil); err != nil {
		return fmt.Errorf("mkfile %q: %w", path, err)
	}
	return nil
}

// Write replaces the contents of the file at path with data, creating the
// file if it does not exist. Only one block is stored; the rest of data is
// dropped. Write returns the number of bytes stored.
func (fs *Fs) Write(path string, data []byte) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.requireMounted(); err != nil {
		return 0, fmt.Errorf("write %q: %w", path, err)
	}
	path = namei.Clean(path)
	n := util.Min(uint64(len(data)), fs.sb.BlockSz())
	data = data[:n]
	if data == nil {
		data = []byte{}
	}
	util.DPrintf(1, "fs: write %q (%d bytes)\n", path, n)

	inum, err := fs.namei.Resolve(path)
	if errors.Is(err, common.ErrPathNotFound) {
		if _, err := fs.create(path, false, data); err != nil {
			return 0, fmt.Errorf("write %q: %w", path, err)
		}
		return n, nil
	}
	if err != nil {
		return 0, fmt.Errorf("write %q: %w", path, err)
	}
	if err := fs.rewrite(inum, data); err != nil {
		return 0, fmt.Errorf("write %q: %w", path, err)
	}
	return n, nil
}

// rewrite stores data in existing file inum.
func (fs *Fs) rewrite(inum common.Inum, data []byte) error {
	ip, err := fs.inodes.Read(inum)
	if err != nil {
		return err
	}
	if ip.IsDir() {
		return common.ErrIsDirectory
	}
	fresh := ip.Blocks[0] == common.NULLBNUM
	if fresh {
		bn, err := fs.alloc.AllocNum()
		if err != nil {
			return err
		}
		ip.Blocks[0] = bn
	}
	if err := fs.writeBlock(ip.Blocks[0], data); err != nil {
		if fresh {
			fs.alloc.FreeNum(ip.Blocks[0])
		}
		return err
	}
	ip.Size = uint64(len(data))
	if err := fs.inodes.Write(inum, ip); err != nil {
		if fresh {
			fs.alloc.FreeNum(ip.Blocks[0])
		}
		return err
	}
	if fresh {
		return fs.alloc.Flush()
	}
	return nil
}

// Read copies the start of the file at path into b and returns the number of
// bytes copied, min(len(b), file size). Only the first block is read.
func (fs *Fs) Read(path string, b []byte) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.requireMounted(); err != nil {
		return 0, fmt.Errorf("read %q: %w", path, err)
	}
	inum, err := fs.namei.Resolve(path)
	if err != nil {
		return 0, fmt.Errorf("read %q: %w", path, err)
	}
	ip, err := fs.inodes.Read(inum)
	if err != nil {
		return 0, fmt.Errorf("read %q: %w", path, err)
	}
	if ip.IsDir() {
		return 0, fmt.Errorf("read %q: %w", path, common.ErrIsDirectory)
	}
	n := util.Min(uint64(len(b)), util.Min(ip.Size, fs.sb.BlockSz()))
	if n == 0 || ip.Blocks[0] == common.NULLBNUM {
		return 0, nil
	}
	err = fs.d.ReadTo(addr.MkBlockAddr(ip.Blocks[0]).Flatid(fs.sb.BlockSz()), b[:n])
	if err != nil {
		return 0, fmt.Errorf("read %q: %w", path, err)
	}
	util.DPrintf(1, "fs: read %q (%d bytes)\n", path, n)
	return n, nil
}

// remove unlinks path from its parent and releases its blocks and inode.
// check inspects the inode first and may refuse.
func (fs *Fs) remove(path string, check func(ip *inode.Inode) error) error {
	path = namei.Clean(path)
	if path == "/" {
		return fmt.Errorf("%w: cannot remove the root directory", common.ErrInvalidPath)
	}
	parent, name, err := fs.lookupParent(path)
	if err != nil {
		return err
	}
	inum, err := fs.dirs.Lookup(parent, name)
	if err != nil {
		return err
	}
	ip, err := fs.inodes.Read(inum)
	if err != nil {
		return err
	}
	if err := check(&ip); err != nil {
		return err
	}
	if err := fs.dirs.Remove(parent, inum); err != nil {
		return err
	}
	for _, bn := range ip.Blocks {
		if bn != common.NULLBNUM {
			if err := fs.alloc.FreeNum(bn); err != nil {
				return err
			}
		}
	}
	if err := fs.inodes.Free(inum); err != nil {
		return err
	}
	if err := fs.alloc.Flush(); err != nil {
		return err
	}
	util.DPrintf(1, "fs: removed %q (inode %d) from %d\n", path, inum, parent)
	return nil
}

// Delete removes the file at path.
func (fs *Fs) Delete(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.requireMounted(); err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}
	err := fs.remove(path, func(ip *inode.Inode) error {
		if ip.IsDir() {
			return common.ErrIsDirectory
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}
	return nil
}

// Rmdir removes the empty directory at path.
func (fs *Fs) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.requireMounted(); err != nil {
		return fmt.Errorf("rmdir %q: %w", path, err)
	}
	err := fs.remove(path, func(ip *inode.Inode) error {
		if !ip.IsDir() {
			return common.ErrNotDirectory
		}
		if ip.Size != 0 {
			return common.ErrNotEmpty
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rmdir %q: %w", path, err)
	}
	return nil
}

// List returns the entries of the directory at path in storage order.
func (fs *Fs) List(path string) ([]dir.Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.requireMounted(); err != nil {
		return nil, fmt.Errorf("list %q: %w", path, err)
	}
	inum, err := fs.namei.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", path, err)
	}
	ents, err := fs.dirs.Entries(inum)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", path, err)
	}
	util.DPrintf(1, "fs: list %q (%d entries)\n", path, len(ents))
	return ents, nil
}

// Stat returns the inode number and inode of path.
func (fs *Fs) Stat(path string) (common.Inum, inode.Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.requireMounted(); err != nil {
		return 0, inode.Inode{}, fmt.Errorf("stat %q: %w", path, err)
	}
	inum, err := fs.namei.Resolve(path)
	if err != nil {
		return 0, inode.Inode{}, fmt.Errorf("stat %q: %w", path, err)
	}
	ip, err := fs.inodes.Read(inum)
	if err != nil {
		return 0, inode.Inode{}, fmt.Errorf("stat %q: %w", path, err)
	}
	return inum, ip, nil
}
