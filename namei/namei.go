// Package namei turns slash-separated paths into inode numbers.
//
// Paths are absolute and case-sensitive. Empty components are skipped, so
// "/a//b/" names the same file as "/a/b". There is no special handling of
// "." or "..".
package namei

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/dir"
	"github.com/mit-pdos/go-imgfs/util"
)

// Components splits path into its non-empty components.
func Components(path string) []string {
	var names []string
	for _, name := range strings.Split(path, "/") {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Clean rewrites path in canonical form: a leading "/", components joined by
// single slashes, no trailing "/".
func Clean(path string) string {
	return "/" + strings.Join(Components(path), "/")
}

// Parent returns the part of path before its last "/", or "/" when that is
// empty or path has no "/".
func Parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// Base returns the last component of path, cut to the longest name a
// directory entry can hold. It is empty for "/".
func Base(path string) string {
	names := Components(path)
	if len(names) == 0 {
		return ""
	}
	return dir.TruncName(names[len(names)-1])
}

// Resolver walks directories from the root inode.
type Resolver struct {
	dirs *dir.Dir
}

func MkResolver(dirs *dir.Dir) *Resolver {
	return &Resolver{dirs: dirs}
}

// Resolve returns the inode path names. Every component but the last must be
// a directory; a missing component, or a file where a directory is needed,
// gives ErrPathNotFound.
func (r *Resolver) Resolve(path string) (common.Inum, error) {
	cur := common.ROOTINUM
	for _, name := range Components(path) {
		next, err := r.dirs.Lookup(cur, dir.TruncName(name))
		if errors.Is(err, common.ErrNotDirectory) {
			return 0, fmt.Errorf("resolving %q: %w: inode %d is not a directory",
				path, common.ErrPathNotFound, cur)
		}
		if err != nil {
			util.DPrintf(5, "namei: %q not found in %d\n", name, cur)
			return 0, fmt.Errorf("resolving %q: %w", path, err)
		}
		cur = next
	}
	util.DPrintf(5, "namei: %q -> %d\n", path, cur)
	return cur, nil
}
