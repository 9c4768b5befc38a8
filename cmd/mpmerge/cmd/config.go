package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mpmerge/tools/internal/humanize"
	"github.com/mpmerge/tools/internal/merge"
	"github.com/mpmerge/tools/internal/portdisk"
	"github.com/mpmerge/tools/internal/uf2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// portConfig is one extra registry entry from mpmerge.yaml:
//
//	ports:
//	  - name: esp32-myboard
//	    start_addr: 0x310000
//	    image_size: 0xf0000
//	    flash_size: 0x400000
type portConfig struct {
	Name      string `mapstructure:"name"`
	StartAddr int64  `mapstructure:"start_addr"`
	EndAddr   int64  `mapstructure:"end_addr"`
	ImageSize int64  `mapstructure:"image_size"`
	FlashSize int64  `mapstructure:"flash_size"`
	PageSize  int    `mapstructure:"page_size"`
	BlockSize int    `mapstructure:"block_size"`
}

// registry builds the port registry once per invocation: built-in table
// plus any ports from the config file. The registry is immutable from
// here on.
func registry() (*portdisk.Registry, error) {
	var extra []portConfig
	if err := viper.UnmarshalKey("ports", &extra); err != nil {
		return nil, fmt.Errorf("mpmerge.yaml ports: %v", err)
	}
	infos := make([]portdisk.Info, 0, len(extra))
	for _, p := range extra {
		infos = append(infos, portdisk.Info{
			Name:      p.Name,
			StartAddr: p.StartAddr,
			EndAddr:   p.EndAddr,
			ImageSize: p.ImageSize,
			FlashSize: p.FlashSize,
			PageSize:  p.PageSize,
			BlockSize: p.BlockSize,
		})
	}
	return portdisk.NewRegistry(infos...)
}

// registerPortFlags adds the port and source flags shared by the merge
// and mkfs commands, with PORTBOARD and SRC environment overrides.
func registerPortFlags(fs *pflag.FlagSet, port, source *string, portDefault, portUsage string) {
	fs.StringVarP(port, "port", "p", envDefault("portboard", portDefault), portUsage)
	fs.StringVarP(source, "source", "s", envDefault("src", "./src"), "source directory to pack into the file system")
}

// envDefault returns the flag default for key, taking the corresponding
// environment variable (PORTBOARD, SRC, ...) over def.
func envDefault(key, def string) string {
	viper.SetDefault(key, def)
	if err := viper.BindEnv(key, strings.ToUpper(key)); err != nil {
		return def
	}
	return viper.GetString(key)
}

// detectPort derives the port from the firmware file name when the user
// passed "auto": esp32-20230426-v1.20.0.bin yields esp32. A -spiram
// variant suffix is stripped.
func detectPort(port, firmwarePath string) string {
	if port != "auto" {
		return port
	}
	stem := strings.TrimSuffix(filepath.Base(firmwarePath), filepath.Ext(firmwarePath))
	port = strings.SplitN(stem, "-", 2)[0]
	port = strings.TrimSuffix(port, "spiram")
	return port
}

// findFirmware resolves the firmware argument: a file is used as-is, a
// directory yields the most recently modified artifact matching
// `<port>*-20*` (the naming scheme of micropython.org downloads).
func findFirmware(path, port string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("firmware path %s does not exist", path)
	}
	if !st.IsDir() {
		return path, nil
	}
	prefix := ""
	if port != "auto" {
		prefix = port
	}
	matches, err := filepath.Glob(filepath.Join(path, prefix+"*-20*"))
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod int64
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil || st.IsDir() {
			continue
		}
		if mod := st.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest, newestMod = m, mod
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no firmware found for port %q in %s", port, path)
	}
	return newest, nil
}

// printManifest renders the merge report.
func printManifest(m *merge.Manifest) {
	fmt.Printf("\nMerge summary:\n")
	fmt.Printf("  Container:   %s\n", m.Kind)
	fmt.Printf("  Port/board:  %s\n", m.Port)
	fmt.Printf("  Partition:   %s\n", m.Geometry)
	fmt.Printf("  Image size:  %s\n", humanize.Bytes(uint64(m.FSImageBytes)))
	if m.Kind == merge.BlockContainer {
		fmt.Printf("  Blocks:      %d -> %d\n", m.BlocksBefore, m.BlocksAfter)
		for i, r := range m.RangesAfter {
			fmt.Printf("  Range %d:     %s (%s)\n", i, r, humanize.Bytes(uint64(r.Size())))
		}
		for i, s := range m.Superblocks {
			fmt.Printf("  Superblock %d: block %d at 0x%08X\n", i, s.BlockNo, s.Addr)
		}
	}
	for _, w := range m.Warnings {
		fmt.Printf("  Warning:     %s\n", w)
	}
}

func familyList(f *uf2.File) string {
	families := f.Families()
	ids := make([]uint32, 0, len(families))
	for id := range families {
		ids = append(ids, id)
	}
	// Stable output: lowest address first, family ID breaks ties.
	sort.Slice(ids, func(i, j int) bool {
		if families[ids[i]] != families[ids[j]] {
			return families[ids[i]] < families[ids[j]]
		}
		return ids[i] < ids[j]
	})
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s (0x%08X) at 0x%08X", uf2.FamilyName(id), id, families[id]))
	}
	return strings.Join(parts, ", ")
}
