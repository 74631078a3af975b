package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-imgfs/common"
)

const (
	FlagValid uint8 = 0x01
	FlagDir   uint8 = 0x02
)

// Inode is the metadata of one file or directory. Names live in directory
// entries, not here.
//
// On disk an inode is 40 bytes: flags padded to 8 bytes, size, four 32-bit
// block numbers, and the owner padded to 8 bytes.
//
// Size counts bytes for a file and entries for a directory. Unused Blocks
// slots are NULLBNUM. Owner is stored but not interpreted.
type Inode struct {
	Flags  uint8
	Size   uint64
	Blocks [common.NDIRECT]common.Bnum
	Owner  uint16
}

func (ip *Inode) IsValid() bool {
	return ip.Flags&FlagValid != 0
}

func (ip *Inode) IsDir() bool {
	return ip.Flags&FlagDir != 0
}

func (ip *Inode) SetValid() {
	ip.Flags |= FlagValid
}

func (ip *Inode) SetInvalid() {
	ip.Flags &= ^FlagValid
}

func (ip *Inode) SetDir() {
	ip.Flags |= FlagDir
}

func (ip *Inode) String() string {
	return fmt.Sprintf("{flags %#x size %d blocks %v}", ip.Flags, ip.Size, ip.Blocks)
}

func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt(uint64(ip.Flags))
	enc.PutInt(ip.Size)
	for _, bn := range ip.Blocks {
		enc.PutInt32(uint32(bn))
	}
	enc.PutInt(uint64(ip.Owner))
	return enc.Finish()
}

func Decode(data []byte) Inode {
	dec := marshal.NewDec(data)
	var ip Inode
	ip.Flags = uint8(dec.GetInt())
	ip.Size = dec.GetInt()
	for i := range ip.Blocks {
		ip.Blocks[i] = common.Bnum(dec.GetInt32())
	}
	ip.Owner = uint16(dec.GetInt())
	return ip
}
