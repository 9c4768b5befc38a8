// Package esptool shells out to the esptool utility to flash merged
// artifacts to esp32-family boards. The merge engine itself never touches
// a device; this wrapper exists for the CLI's flash convenience command.
package esptool

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Options for one write_flash invocation.
type Options struct {
	Chip string // e.g. "esp32", "esp32s3"
	Port string // serial device, empty lets esptool auto-detect
	Baud string // empty uses esptool's default

	// Addr is the flash offset the artifact was merged for. Merged
	// images contain the whole flash layout, so this is usually 0x0.
	Addr int64
}

// WriteFlash flashes the artifact at path. esptool's output goes straight
// to the user's terminal.
func WriteFlash(ctx context.Context, opts Options, path string) error {
	if opts.Chip == "" {
		opts.Chip = "esp32"
	}
	args := []string{"--chip", opts.Chip}
	if opts.Port != "" {
		args = append(args, "--port", opts.Port)
	}
	if opts.Baud != "" {
		args = append(args, "--baud", opts.Baud)
	}
	args = append(args, "write_flash", fmt.Sprintf("0x%x", opts.Addr), path)

	esptool := exec.CommandContext(ctx, "esptool", args...)
	esptool.Stdout = os.Stdout
	esptool.Stderr = os.Stderr
	log.Printf("running %s", strings.Join(esptool.Args, " "))
	if err := esptool.Run(); err != nil {
		return fmt.Errorf("%v: %v", esptool.Args, err)
	}
	return nil
}
