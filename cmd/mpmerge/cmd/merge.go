package cmd

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpmerge/tools/internal/measure"
	"github.com/mpmerge/tools/internal/merge"
	"github.com/mpmerge/tools/internal/sourcedir"
	"github.com/spf13/cobra"
)

// mergeCmd is mpmerge merge.
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "build a littlefs image from a source directory and merge it into a firmware",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().NArg() > 0 {
			fmt.Fprint(os.Stderr, "positional arguments are not supported\n\n")
			return cmd.Usage()
		}
		return mergeImpl.run()
	},
}

type mergeImplConfig struct {
	port     string
	source   string
	firmware string
	build    string
	out      string
	saveFS   bool
}

var mergeImpl mergeImplConfig

func init() {
	registerPortFlags(mergeCmd.Flags(), &mergeImpl.port, &mergeImpl.source,
		"auto", "MicroPython port[-board], or auto to detect from the firmware file name")
	mergeCmd.Flags().StringVarP(&mergeImpl.firmware, "firmware", "f", envDefault("firmware", "./firmware"), "firmware file, or directory holding firmware downloads")
	mergeCmd.Flags().StringVarP(&mergeImpl.build, "build", "B", envDefault("build", "./build"), "build output directory")
	mergeCmd.Flags().StringVarP(&mergeImpl.out, "out", "o", "", "output path (default <build>/firmware_lfs.<bin|uf2>)")
	mergeCmd.Flags().BoolVar(&mergeImpl.saveFS, "save-fs", false, "also save the file system region as its own artifact next to the output")
}

func (r *mergeImplConfig) run() error {
	reg, err := registry()
	if err != nil {
		return err
	}

	firmware, err := findFirmware(r.firmware, r.port)
	if err != nil {
		return err
	}
	port := detectPort(r.port, firmware)
	log.Printf("MicroPython port: %s", port)
	log.Printf("Firmware: %s", firmware)
	log.Printf("Source directory: %s", r.source)

	tree, err := sourcedir.Read(r.source)
	if err != nil {
		return err
	}
	fwBytes, err := os.ReadFile(firmware)
	if err != nil {
		return err
	}

	done := measure.Interactively("merging file system image")
	res, err := merge.Run(merge.Options{
		Registry: reg,
		Port:     port,
		Firmware: fwBytes,
		Tree:     tree,
	})
	if err != nil {
		done("")
		return err
	}
	done(fmt.Sprintf(", %d files", len(tree)))

	printManifest(&res.Manifest)

	out := r.out
	if out == "" {
		if err := os.MkdirAll(r.build, 0755); err != nil {
			return err
		}
		out = filepath.Join(r.build, "firmware_lfs."+res.Manifest.Kind.String())
	}
	if err := res.WriteFile(out); err != nil {
		return err
	}
	fmt.Printf("\nWrote %s\n", out)

	if r.saveFS {
		if err := r.writeFS(res, out); err != nil {
			return err
		}
	}
	return nil
}

// writeFS saves just the file system region: the raw littlefs image, and
// for UF2 outputs additionally a UF2 holding only the new blocks.
func (r *mergeImplConfig) writeFS(res *merge.Result, out string) error {
	base := strings.TrimSuffix(out, filepath.Ext(out))
	imgPath := base + ".littlefs.img"
	if err := os.WriteFile(imgPath, res.FSImage, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", imgPath)

	if len(res.FSBlocks) > 0 {
		var buf bytes.Buffer
		fsOnly := res.FSOnlyUF2()
		if _, err := fsOnly.WriteTo(&buf); err != nil {
			return err
		}
		uf2Path := base + ".littlefs.uf2"
		if err := os.WriteFile(uf2Path, buf.Bytes(), 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", uf2Path)
	}
	return nil
}
