package common

const (
	// MAGIC identifies an imgfs image; it doubles as the format version.
	MAGIC uint32 = 0x20240604

	BLOCKSZ   uint64 = 1024 // default block size
	NBLOCKS   uint64 = 1024 // default image size in blocks (1 MiB)
	NINODES   uint64 = 128  // default inode table capacity
	BITMAPBLK Bnum   = 1    // the bitmap always follows the superblock

	SUPERSZ  uint64 = 28 // on-disk size of the superblock record
	INODESZ  uint64 = 40 // on-disk size of an inode record
	DIRENTSZ uint64 = 32 // on-disk size of a directory entry

	NDIRECT    uint64 = 4  // data blocks per inode
	MAXNAMELEN uint64 = 27 // directory entry names, excluding the NUL
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLBNUM Bnum = 0
)

// DirentsPerBlock is the number of directory entries packed into a block of
// size bs.
func DirentsPerBlock(bs uint64) uint64 {
	return bs / DIRENTSZ
}
