// Package fsimage builds fixed-size file system images from an in-memory
// source tree. The byte-level file system layout is delegated to a Codec;
// this package owns geometry and path validation, capacity reporting and
// the determinism guarantee (same tree, same geometry, same bytes).
package fsimage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Entry is one node of a source tree: a file with contents, or a bare
// directory. Path is POSIX style and rooted at "/".
type Entry struct {
	Path string
	Data []byte
	Dir  bool
}

// SourceTree is an ordered set of entries. Order does not affect
// correctness of the resulting image but does determine block allocation
// order inside it.
type SourceTree []Entry

// TotalBytes returns the cumulative file payload of the tree, not
// counting file system metadata overhead.
func (t SourceTree) TotalBytes() int64 {
	var n int64
	for _, e := range t {
		n += int64(len(e.Data))
	}
	return n
}

// Codec is the file system format plugged into Build. Format returns an
// empty image of blockSize*blockCount bytes ready to receive files.
type Codec interface {
	Format(blockSize, blockCount int) (Image, error)

	// CaseSensitive reports whether the format distinguishes paths by
	// case. Case-insensitive formats get a collision check during Build.
	CaseSensitive() bool
}

// Image is a formatted file system image under construction.
type Image interface {
	Mkdir(path string) error
	WriteFile(path string, data []byte) error

	// Bytes finalizes the image and returns its full contents.
	Bytes() ([]byte, error)
}

// InvalidGeometryError reports an image size that is not a positive
// multiple of the block size.
type InvalidGeometryError struct {
	Size      int64
	BlockSize int64
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry: image size %d is not a positive multiple of block size %d", e.Size, e.BlockSize)
}

// CapacityError reports that the source tree does not fit the image.
type CapacityError struct {
	Required  int64
	Available int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("source tree does not fit: need at least %d bytes, image holds %d", e.Required, e.Available)
}

// InvalidPathError reports a source tree entry with an unusable path.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// capacityReporter is implemented by codec errors that know how many bytes
// would have been needed; littlefs.NoSpaceError is one.
type capacityReporter interface {
	error
	Capacity() (required, available int64)
}

// Build creates a file system image of exactly sizeBytes from tree.
//
// It fails with InvalidGeometryError if sizeBytes is not a positive
// multiple of blockSize, with InvalidPathError for escaping, duplicate or
// (on case-insensitive codecs) case-colliding paths, and with
// CapacityError when tree plus metadata overhead exceeds sizeBytes.
func Build(tree SourceTree, sizeBytes, blockSize int64, codec Codec) ([]byte, error) {
	if blockSize <= 0 || sizeBytes <= 0 || sizeBytes%blockSize != 0 {
		return nil, &InvalidGeometryError{Size: sizeBytes, BlockSize: blockSize}
	}
	normalized, err := normalizeTree(tree, codec.CaseSensitive())
	if err != nil {
		return nil, err
	}

	img, err := codec.Format(int(blockSize), int(sizeBytes/blockSize))
	if err != nil {
		return nil, wrapCapacity(err, sizeBytes)
	}
	for _, e := range normalized {
		if e.Dir {
			err = img.Mkdir(e.Path)
		} else {
			err = img.WriteFile(e.Path, e.Data)
		}
		if err != nil {
			return nil, wrapCapacity(fmt.Errorf("writing %s: %w", e.Path, err), sizeBytes)
		}
	}
	buf, err := img.Bytes()
	if err != nil {
		return nil, wrapCapacity(err, sizeBytes)
	}
	if int64(len(buf)) != sizeBytes {
		return nil, fmt.Errorf("codec produced %d bytes, want %d", len(buf), sizeBytes)
	}
	return buf, nil
}

func wrapCapacity(err error, available int64) error {
	var cr capacityReporter
	if errors.As(err, &cr) {
		required, _ := cr.Capacity()
		return &CapacityError{Required: required, Available: available}
	}
	return err
}

func normalizeTree(tree SourceTree, caseSensitive bool) (SourceTree, error) {
	seen := make(map[string]bool, len(tree))
	folded := make(map[string]string, len(tree))
	out := make(SourceTree, 0, len(tree))
	for _, e := range tree {
		p := e.Path
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		for _, component := range strings.Split(p, "/") {
			if component == ".." {
				return nil, &InvalidPathError{Path: e.Path, Reason: "escapes the file system root"}
			}
		}
		clean := path.Clean(p)
		if clean == "/" && !e.Dir {
			return nil, &InvalidPathError{Path: e.Path, Reason: "names the root directory"}
		}
		if seen[clean] {
			return nil, &InvalidPathError{Path: e.Path, Reason: "duplicate path"}
		}
		seen[clean] = true
		if !caseSensitive {
			lower := strings.ToLower(clean)
			if prev, ok := folded[lower]; ok {
				return nil, &InvalidPathError{
					Path:   e.Path,
					Reason: fmt.Sprintf("collides case-insensitively with %q", prev),
				}
			}
			folded[lower] = clean
		}
		e.Path = clean
		out = append(out, e)
	}
	return out, nil
}
