// Package portdisk holds the static flash layout table for the supported
// MicroPython ports and boards: where the on-flash filesystem partition
// starts, how large it is, and which littlefs version the firmware expects.
//
// Entries are registered once when a Registry is constructed and are
// read-only afterwards.
package portdisk

import (
	"fmt"
	"strings"
)

const (
	// FlashPageSize is the flash page size shared by all currently
	// supported ports (rp2_common calls this FLASH_PAGE_SIZE).
	FlashPageSize = 256

	// BlockSize is the littlefs block size used by MicroPython builds,
	// equal to the flash sector size.
	BlockSize = 4096
)

// Filesystem versions as encoded in the littlefs on-disk superblock.
const (
	VfsLfs1 = 0x0001_0000
	VfsLfs2 = 0x0002_0000
)

// Info describes the filesystem partition of one port/board combination.
// StartAddr plus exactly one of EndAddr or ImageSize must be set; the
// remaining geometry fields are derived on registration.
type Info struct {
	// Name is the `<port>-<board>` identifier, e.g. "rp2-pico_w".
	Name string

	// FlashSize is the total flash capacity in bytes, if known. Zero
	// means unknown; raw-binary bounds checks are skipped in that case.
	FlashSize int64

	PageSize  int
	BlockSize int

	StartAddr int64
	EndAddr   int64
	ImageSize int64

	// BlockCount is ImageSize / BlockSize, derived.
	BlockCount int

	// VfsType selects the littlefs disk version (VfsLfs1 or VfsLfs2).
	VfsType uint32
}

// Geometry is the resolved (start, size) pair of a filesystem partition.
type Geometry struct {
	StartAddr int64
	Size      int64
}

func (g Geometry) End() int64 { return g.StartAddr + g.Size }

func (g Geometry) String() string {
	return fmt.Sprintf("0x%08X-0x%08X (%d bytes)", g.StartAddr, g.End(), g.Size)
}

// UnknownPortError is returned when a port/board identifier has no registry
// entry and no geometry could be derived from the firmware itself.
type UnknownPortError struct {
	Port string
}

func (e *UnknownPortError) Error() string {
	return fmt.Sprintf("unknown port/board %q: no disk layout registered and none found in the firmware", e.Port)
}

// builtin is the table of verified (and a few yet-unverified) boards,
// collected from the respective board definitions and linker scripts.
var builtin = []Info{
	{
		Name:      "esp32-generic",
		StartAddr: 0x0020_0000,
		ImageSize: 0x0020_0000,
		FlashSize: 0x40_0000, // 4MB
	},

	{
		Name:      "rp2-pico_w",
		StartAddr: 0x1012_C000,
		EndAddr:   0x1020_0000, // 848K
	},

	// Below boards are not yet verified on hardware.
	{
		Name:      "esp32-ota",
		StartAddr: 0x0031_0000,
		ImageSize: 0x000F_0000,
		FlashSize: 0x40_0000, // 4MB, OTA layout
	},
	{
		Name:      "esp32-s3-generic",
		StartAddr: 0x0020_0000,
		ImageSize: 0x0060_0000,
		FlashSize: 0x80_0000, // 8MB
	},
	{
		Name:      "rp2-pico",
		StartAddr: 0x100A_0000,
		EndAddr:   0x1020_0000, // 1408K
	},
	{
		Name:      "rp2-pimoroni_picolipo_16mb",
		StartAddr: 0x1010_0000,
		EndAddr:   0x1100_0000, // 15360K
	},
}

// Registry is an immutable lookup table of Info entries keyed by name.
type Registry struct {
	byName map[string]Info
	names  []string
}

// NewRegistry builds a registry from the built-in table plus any extra
// entries (e.g. loaded from a user config). Extra entries with a name
// already present override the built-in one.
func NewRegistry(extra ...Info) (*Registry, error) {
	r := &Registry{byName: make(map[string]Info)}
	for _, info := range builtin {
		if err := r.add(info); err != nil {
			// built-in table is validated by TestBuiltinTable
			panic(err)
		}
	}
	for _, info := range extra {
		if err := r.add(info); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(info Info) error {
	normalized, err := normalize(info)
	if err != nil {
		return fmt.Errorf("port %q: %v", info.Name, err)
	}
	if _, ok := r.byName[normalized.Name]; !ok {
		r.names = append(r.names, normalized.Name)
	}
	r.byName[normalized.Name] = normalized
	return nil
}

// normalize derives the redundant geometry fields and validates the entry.
func normalize(info Info) (Info, error) {
	if info.Name == "" {
		return info, fmt.Errorf("entry has no name")
	}
	if info.PageSize == 0 {
		info.PageSize = FlashPageSize
	}
	if info.BlockSize == 0 {
		info.BlockSize = BlockSize
	}
	if info.VfsType == 0 {
		info.VfsType = VfsLfs2
	}
	if info.StartAddr == 0 {
		return info, fmt.Errorf("start address must be provided")
	}
	switch {
	case info.EndAddr != 0 && info.ImageSize == 0:
		info.ImageSize = info.EndAddr - info.StartAddr
	case info.ImageSize != 0 && info.EndAddr == 0:
		info.EndAddr = info.StartAddr + info.ImageSize
	case info.ImageSize == 0 && info.EndAddr == 0:
		return info, fmt.Errorf("either end address or image size must be provided")
	}
	if info.ImageSize != info.EndAddr-info.StartAddr {
		return info, fmt.Errorf("image size 0x%X inconsistent with range 0x%X-0x%X",
			info.ImageSize, info.StartAddr, info.EndAddr)
	}
	if info.ImageSize <= 0 {
		return info, fmt.Errorf("image size must be positive, got %d", info.ImageSize)
	}
	info.BlockCount = int(info.ImageSize / int64(info.BlockSize))
	if info.BlockCount == 0 {
		return info, fmt.Errorf("image size 0x%X smaller than one block (0x%X)",
			info.ImageSize, info.BlockSize)
	}
	return info, nil
}

// Lookup returns the entry for the given `<port>-<board>` identifier.
// A bare port name falls back to `<port>-generic`, matching how firmware
// downloads are named.
func (r *Registry) Lookup(port string) (Info, error) {
	if info, ok := r.byName[port]; ok {
		return info, nil
	}
	if !strings.Contains(port, "-") {
		if info, ok := r.byName[port+"-generic"]; ok {
			return info, nil
		}
	}
	return Info{}, &UnknownPortError{Port: port}
}

// Names returns all registered identifiers in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Geometry returns the partition geometry of the entry.
func (i Info) Geometry() Geometry {
	return Geometry{StartAddr: i.StartAddr, Size: i.ImageSize}
}
