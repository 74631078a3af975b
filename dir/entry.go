package dir

import (
	"bytes"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-imgfs/common"
)

// Entry is a directory entry: a name and the inode it refers to.
//
// On disk an entry is 32 bytes: the inode number as a 32-bit integer, then
// the name, NUL-terminated, in 28 bytes.
type Entry struct {
	Inum common.Inum
	Name string
}

// TruncName cuts name to the longest prefix that fits in an entry.
func TruncName(name string) string {
	if uint64(len(name)) > common.MAXNAMELEN {
		return name[:common.MAXNAMELEN]
	}
	return name
}

func EncodeEntry(e Entry) []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt32(uint32(e.Inum))
	data := enc.Finish()
	copy(data[4:4+common.MAXNAMELEN], TruncName(e.Name))
	return data
}

func DecodeEntry(data []byte) Entry {
	dec := marshal.NewDec(data[:4])
	inum := dec.GetInt32()
	name := data[4:common.DIRENTSZ]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Entry{Inum: common.Inum(inum), Name: string(name)}
}
