package merge

import (
	"fmt"

	"github.com/mpmerge/tools/internal/portdisk"
	"github.com/mpmerge/tools/internal/uf2"
)

// Kind classifies a firmware artifact.
type Kind int

const (
	// RawBinary is an opaque flash image (esp32 .bin).
	RawBinary Kind = iota
	// BlockContainer is a self-describing block stream (rp2 .uf2).
	BlockContainer
)

func (k Kind) String() string {
	if k == BlockContainer {
		return "uf2"
	}
	return "bin"
}

// Warning codes attached to a manifest.
const (
	// WarnIncompleteMerge: no littlefs superblock was detected in the
	// merged region. The image may still be valid, the caller decides.
	WarnIncompleteMerge = "incomplete-merge"

	// WarnOverwrite: the target region already held data and was
	// overwritten (the normal re-merge case).
	WarnOverwrite = "overwrite"
)

// Warning is a non-fatal observation from a merge.
type Warning struct {
	Code    string
	Message string
}

func (w Warning) String() string { return w.Code + ": " + w.Message }

// Manifest is the structured report of one merge: resolved geometry,
// what the container looked like before and after, and any warnings.
// Formatting and printing is left to the caller.
type Manifest struct {
	Kind     Kind
	Port     string
	Geometry portdisk.Geometry

	// FSImageBytes is the size of the file system image that was built.
	FSImageBytes int64

	// Container details, only populated for BlockContainer merges.
	RangesBefore []uf2.Range
	RangesAfter  []uf2.Range
	Superblocks  []uf2.Superblock
	BlocksBefore int
	BlocksAfter  int

	Warnings []Warning
}

func (m *Manifest) warnf(code, format string, args ...interface{}) {
	m.Warnings = append(m.Warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
}
