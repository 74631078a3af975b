package namei

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-imgfs/alloc"
	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/dir"
	"github.com/mit-pdos/go-imgfs/disk"
	"github.com/mit-pdos/go-imgfs/inode"
	"github.com/mit-pdos/go-imgfs/super"
)

func TestParent(t *testing.T) {
	tests := []struct {
		path   string
		parent string
	}{
		{"/docs/a.txt", "/docs"},
		{"/a.txt", "/"},
		{"a.txt", "/"},
		{"/", "/"},
		{"/a/b/c", "/a/b"},
		{"", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.parent, Parent(tt.path), "Parent(%q)", tt.path)
	}
}

func TestBase(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("a.txt", Base("/docs/a.txt"))
	assert.Equal("docs", Base("/docs/"))
	assert.Equal("", Base("/"))
	assert.Equal("abcdefghijklmnopqrstuvwxyz0", Base("/abcdefghijklmnopqrstuvwxyz0123"))
}

func TestComponents(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Components("//a///b/"))
	assert.Empty(t, Components("/"))
	assert.Equal(t, "/a/b", Clean("a//b/"))
	assert.Equal(t, "/", Clean("//"))
}

type tree struct {
	r      *Resolver
	dirs   *dir.Dir
	inodes *inode.Table
	a      *alloc.Alloc
}

func (tr tree) mk(t *testing.T, parent common.Inum, name string, isDir bool) common.Inum {
	inum, err := tr.inodes.Alloc()
	require.NoError(t, err)
	ip := inode.Inode{}
	ip.SetValid()
	if isDir {
		ip.SetDir()
		bn, err := tr.a.AllocNum()
		require.NoError(t, err)
		ip.Blocks[0] = bn
	}
	require.NoError(t, tr.inodes.Write(inum, ip))
	if inum != common.ROOTINUM {
		require.NoError(t, tr.dirs.Append(parent, dir.Entry{Inum: inum, Name: name}))
	}
	return inum
}

// mkTree builds /docs/a.txt and /docs/sub, plus /b.txt.
func mkTree(t *testing.T) (tree, map[string]common.Inum) {
	sb := super.MkLayout(1024, 64, 16)
	d := disk.NewMemDisk(sb.DiskSize())
	a := alloc.MkAlloc(d, sb)
	a.Clear()
	inodes := inode.MkTable(d, sb)
	require.NoError(t, inodes.Init())
	dirs := dir.MkDir(d, inodes, a, sb)
	tr := tree{r: MkResolver(dirs), dirs: dirs, inodes: inodes, a: a}

	m := make(map[string]common.Inum)
	m["/"] = tr.mk(t, 0, "", true)
	m["/docs"] = tr.mk(t, m["/"], "docs", true)
	m["/docs/a.txt"] = tr.mk(t, m["/docs"], "a.txt", false)
	m["/docs/sub"] = tr.mk(t, m["/docs"], "sub", true)
	m["/b.txt"] = tr.mk(t, m["/"], "b.txt", false)
	return tr, m
}

func TestResolve(t *testing.T) {
	tr, m := mkTree(t)
	require.Equal(t, common.ROOTINUM, m["/"])
	for path, want := range m {
		inum, err := tr.r.Resolve(path)
		assert.NoError(t, err, path)
		assert.Equal(t, want, inum, path)
	}

	inum, err := tr.r.Resolve("//docs//a.txt/")
	assert.NoError(t, err)
	assert.Equal(t, m["/docs/a.txt"], inum)
}

func TestResolveMissing(t *testing.T) {
	tr, _ := mkTree(t)
	for _, path := range []string{
		"/nope",
		"/docs/nope",
		"/Docs/a.txt",
		"/nope/a.txt",
		"/b.txt/x",
		"/docs/a.txt/x",
	} {
		_, err := tr.r.Resolve(path)
		assert.ErrorIs(t, err, common.ErrPathNotFound, path)
	}
}

func TestResolveLongName(t *testing.T) {
	tr, _ := mkTree(t)
	long := "abcdefghijklmnopqrstuvwxyz0123"
	inum := tr.mk(t, 0, dir.TruncName(long), false)
	got, err := tr.r.Resolve("/" + long)
	assert.NoError(t, err)
	assert.Equal(t, inum, got)
}
