package cmd

import (
	"fmt"
	"os"

	"github.com/mpmerge/tools/internal/humanize"
	"github.com/mpmerge/tools/internal/uf2"
	"github.com/spf13/cobra"
)

// infoCmd is mpmerge info.
var infoCmd = &cobra.Command{
	Use:   "info <firmware.uf2>",
	Short: "show ranges, families and littlefs regions of a UF2 firmware",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return infoImpl(args[0])
	},
}

func infoImpl(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	f, err := uf2.Parse(in)
	if err != nil {
		return err
	}

	fmt.Printf("UF2 file: %s\n", path)
	fmt.Printf("Number of blocks: %d\n", len(f.Blocks))
	if fam := familyList(f); fam != "" {
		fmt.Printf("Families: %s\n", fam)
	}
	for i, r := range f.Ranges() {
		fmt.Printf("Range %d: %s (%s)\n", i, r, humanize.Bytes(uint64(r.Size())))
	}
	for i, s := range f.Superblocks() {
		fmt.Printf("LittleFS superblock %d: block %d at 0x%08X\n", i, s.BlockNo, s.Addr)
	}
	for i, d := range f.DriveRanges() {
		fmt.Printf("Embedded drive %d: %s (%s)\n", i, d, humanize.Bytes(uint64(d.Size())))
	}
	return nil
}
