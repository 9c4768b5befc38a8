package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/mpmerge/tools/internal/fsimage"
	"github.com/mpmerge/tools/internal/humanize"
	"github.com/mpmerge/tools/internal/merge"
	"github.com/mpmerge/tools/internal/sourcedir"
	"github.com/spf13/cobra"
)

// mkfsCmd is mpmerge mkfs: build just the littlefs image, without a
// firmware to merge it into.
var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "build a littlefs image for a port without merging it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mkfsImpl.run()
	},
}

type mkfsImplConfig struct {
	port   string
	source string
	out    string
}

var mkfsImpl mkfsImplConfig

func init() {
	registerPortFlags(mkfsCmd.Flags(), &mkfsImpl.port, &mkfsImpl.source,
		"esp32-generic", "MicroPython port[-board] the image geometry is taken from")
	mkfsCmd.Flags().StringVarP(&mkfsImpl.out, "out", "o", "./build/littlefs.img", "output image path")
}

func (r *mkfsImplConfig) run() error {
	reg, err := registry()
	if err != nil {
		return err
	}
	info, err := reg.Lookup(r.port)
	if err != nil {
		return err
	}
	log.Printf("Port: %s, BlockSize: %d, BlockCount: %d, ImageSize: %s",
		info.Name, info.BlockSize, info.BlockCount, humanize.Bytes(uint64(info.ImageSize)))

	tree, err := sourcedir.Read(r.source)
	if err != nil {
		return err
	}
	img, err := fsimage.Build(tree, info.ImageSize, int64(info.BlockSize), merge.Codec(info.VfsType))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.out), 0755); err != nil {
		return err
	}
	if err := renameio.WriteFile(r.out, img, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%s, %d files)\n", r.out, humanize.Bytes(uint64(len(img))), len(tree))
	return nil
}
