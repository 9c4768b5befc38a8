// Package sourcedir reads a directory tree from the host file system into
// the in-memory source tree consumed by the image builder.
package sourcedir

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mpmerge/tools/internal/fsimage"
)

// Read walks dir and returns its regular files and directories as a
// source tree with /-rooted POSIX paths. The walk is lexical, so the
// resulting tree (and any image built from it) is deterministic for a
// given directory state. Symlinks are skipped.
func Read(dir string) (fsimage.SourceTree, error) {
	root := os.DirFS(dir)
	var tree fsimage.SourceTree
	err := fs.WalkDir(root, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		switch {
		case d.IsDir():
			tree = append(tree, fsimage.Entry{Path: "/" + p, Dir: true})
		case d.Type().IsRegular():
			b, err := fs.ReadFile(root, p)
			if err != nil {
				return err
			}
			tree = append(tree, fsimage.Entry{Path: "/" + p, Data: b})
		default:
			// sockets, symlinks etc. have no littlefs representation
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading source tree %s: %w", filepath.Clean(dir), err)
	}
	return tree, nil
}
