// Package merge is the image-merge engine: it resolves the file system
// partition for a firmware artifact, builds a littlefs image from a
// source tree, and merges the image into the firmware, producing a single
// flashable artifact plus a manifest describing what was done.
//
// The whole pipeline runs in memory. Nothing is written to disk until
// Result.WriteFile, which writes atomically; a fatal error anywhere in
// the pipeline therefore never leaves a partial output behind.
package merge

import (
	"bytes"
	"fmt"

	"github.com/mpmerge/tools/internal/fsimage"
	"github.com/mpmerge/tools/internal/partition"
	"github.com/mpmerge/tools/internal/portdisk"
	"github.com/mpmerge/tools/internal/rawimg"
	"github.com/mpmerge/tools/internal/uf2"
)

// Options configures one merge run.
type Options struct {
	// Registry resolves port identifiers; required.
	Registry *portdisk.Registry

	// Port is the `<port>-<board>` identifier. It may be empty for a
	// block container that advertises its own drive range.
	Port string

	// Firmware is the complete firmware artifact. Its kind (raw binary
	// or UF2) is detected from its leading magic.
	Firmware []byte

	// Tree is the source tree to pack into the file system image.
	Tree fsimage.SourceTree

	// ChunkSize overrides the UF2 payload bytes per appended block.
	// Zero uses the port's flash page size.
	ChunkSize int
}

// Result is a completed merge: the final artifact, the file system image
// it embeds, and the manifest.
type Result struct {
	Output   []byte
	FSImage  []byte
	Manifest Manifest

	// FSBlocks holds the UF2 blocks carrying just the file system, for
	// optionally saving the image as a standalone UF2.
	FSBlocks []*uf2.Block
}

// Run executes resolve, build, merge and returns the result. It performs
// no I/O.
func Run(opts Options) (*Result, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("merge: no registry")
	}

	if uf2.IsUF2(opts.Firmware) {
		return runUF2(opts)
	}
	return runRaw(opts)
}

// info returns the registry entry for the port, or defaults when the
// geometry came out of the container and the port is unregistered.
func info(opts Options) portdisk.Info {
	if i, err := opts.Registry.Lookup(opts.Port); err == nil {
		return i
	}
	return portdisk.Info{
		PageSize:  portdisk.FlashPageSize,
		BlockSize: portdisk.BlockSize,
		VfsType:   portdisk.VfsLfs2,
	}
}

func buildImage(opts Options, geom portdisk.Geometry, i portdisk.Info) ([]byte, error) {
	return fsimage.Build(opts.Tree, geom.Size, int64(i.BlockSize), Codec(i.VfsType))
}

func runRaw(opts Options) (*Result, error) {
	geom, err := partition.Resolve(opts.Registry, opts.Port, nil)
	if err != nil {
		return nil, err
	}
	i := info(opts)

	img, err := buildImage(opts, geom, i)
	if err != nil {
		return nil, err
	}

	merged, err := rawimg.Merge(opts.Firmware, img, geom.StartAddr, i.FlashSize)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Output:  merged.Bytes,
		FSImage: img,
		Manifest: Manifest{
			Kind:         RawBinary,
			Port:         opts.Port,
			Geometry:     geom,
			FSImageBytes: int64(len(img)),
		},
	}
	if merged.Overwrote {
		res.Manifest.warnf(WarnOverwrite, "replaced existing data at 0x%08X", geom.StartAddr)
	}
	return res, nil
}

func runUF2(opts Options) (*Result, error) {
	f, err := uf2.Parse(bytes.NewReader(opts.Firmware))
	if err != nil {
		return nil, err
	}
	rangesBefore := f.Ranges()
	blocksBefore := len(f.Blocks)

	geom, err := resolveUF2(opts, f)
	if err != nil {
		return nil, err
	}
	i := info(opts)

	img, err := buildImage(opts, geom, i)
	if err != nil {
		return nil, err
	}

	// An existing file system region is appended over, not spliced out:
	// later blocks win when flashing.
	chunk := opts.ChunkSize
	if chunk == 0 {
		chunk = i.PageSize
	}
	fsBlocks, err := f.AppendImage(img, uint32(geom.StartAddr), uint32(geom.End()), chunk)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(f.Blocks) * uf2.BlockSize)
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}

	res := &Result{
		Output:   buf.Bytes(),
		FSImage:  img,
		FSBlocks: fsBlocks,
		Manifest: Manifest{
			Kind:         BlockContainer,
			Port:         opts.Port,
			Geometry:     geom,
			FSImageBytes: int64(len(img)),
			RangesBefore: rangesBefore,
			RangesAfter:  f.Ranges(),
			Superblocks:  f.Superblocks(),
			BlocksBefore: blocksBefore,
			BlocksAfter:  len(f.Blocks),
		},
	}

	found := false
	for _, s := range res.Manifest.Superblocks {
		if int64(s.Addr) == geom.StartAddr {
			found = true
			break
		}
	}
	if !found {
		res.Manifest.warnf(WarnIncompleteMerge,
			"no littlefs superblock detected at 0x%08X after merge", geom.StartAddr)
	}
	if len(rangesBefore) > 0 {
		for _, r := range rangesBefore {
			if int64(r.Start) < geom.End() && geom.StartAddr < int64(r.End) {
				res.Manifest.warnf(WarnOverwrite,
					"merged region overlaps existing range %s", r)
				break
			}
		}
	}
	return res, nil
}

func resolveUF2(opts Options, f *uf2.File) (portdisk.Geometry, error) {
	return partition.Resolve(opts.Registry, opts.Port, f.DriveRanges())
}

// FSOnlyUF2 returns a standalone container holding copies of just the
// appended file system blocks, renumbered from zero.
func (r *Result) FSOnlyUF2() *uf2.File {
	f := &uf2.File{Blocks: make([]*uf2.Block, 0, len(r.FSBlocks))}
	for _, b := range r.FSBlocks {
		nb := *b
		f.Blocks = append(f.Blocks, &nb)
	}
	f.Renumber()
	return f
}

// mergedImage rebuilds the byte view of the file system region from the
// container, used by verification and tests.
func mergedImage(f *uf2.File, geom portdisk.Geometry) []byte {
	img := make([]byte, geom.Size)
	for _, b := range f.Blocks {
		addr := int64(b.TargetAddr)
		if addr < geom.StartAddr || addr >= geom.End() {
			continue
		}
		copy(img[addr-geom.StartAddr:], b.Payload())
	}
	return img
}
