package uf2

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mpmerge/tools/internal/littlefs"
)

// Range is a contiguous flash address range covered by consecutive
// blocks: [Start, End).
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) Size() int64 { return int64(r.End) - int64(r.Start) }

func (r Range) String() string {
	return fmt.Sprintf("0x%08X-0x%08X", r.Start, r.End)
}

// Superblock is a detected littlefs superblock inside the block stream.
type Superblock struct {
	BlockNo int
	Addr    uint32
}

// Ranges coalesces the block stream into contiguous address ranges. A
// range ends where the next block's target address does not continue the
// previous block's payload.
func (f *File) Ranges() []Range {
	var ranges []Range
	var last, start uint32
	started := false
	for _, b := range f.Blocks {
		if !started {
			start = b.TargetAddr
			started = true
		} else if last != b.TargetAddr {
			ranges = append(ranges, Range{Start: start, End: last})
			start = b.TargetAddr
		}
		last = b.TargetAddr + b.PayloadSize
	}
	if started {
		ranges = append(ranges, Range{Start: start, End: last})
	}
	return ranges
}

// Families returns the lowest target address seen per declared family ID.
func (f *File) Families() map[uint32]uint32 {
	families := make(map[uint32]uint32)
	for _, b := range f.Blocks {
		id, ok := b.FamilyID()
		if !ok {
			continue
		}
		if addr, ok := families[id]; !ok || b.TargetAddr < addr {
			families[id] = b.TargetAddr
		}
	}
	return families
}

// Superblocks scans for littlefs superblock signatures at file system
// block aligned target addresses.
func (f *File) Superblocks() []Superblock {
	var found []Superblock
	for i, b := range f.Blocks {
		if b.TargetAddr%4096 == 0 && bytes.Contains(b.Payload(), littlefs.Marker) {
			found = append(found, Superblock{BlockNo: i, Addr: b.TargetAddr})
		}
	}
	return found
}

// DriveRanges returns the candidate embedded-drive ranges of the
// container: every range whose first block carries a littlefs superblock.
// On a firmware that already contains a file system (the usual re-merge
// case) this recovers the drive geometry without any registry entry.
func (f *File) DriveRanges() []Range {
	super := f.Superblocks()
	var drives []Range
	for _, r := range f.Ranges() {
		for _, s := range super {
			if s.Addr == r.Start {
				drives = append(drives, r)
				break
			}
		}
	}
	return drives
}

// IsUF2 reports whether buf starts with the UF2 block magic. The merge
// layer uses it to classify firmware artifacts.
func IsUF2(buf []byte) bool {
	return len(buf) >= 8 &&
		binary.LittleEndian.Uint32(buf[0:]) == MagicStart0 &&
		binary.LittleEndian.Uint32(buf[4:]) == MagicStart1
}
