package cmd

import (
	"github.com/mpmerge/tools/internal/esptool"
	"github.com/spf13/cobra"
)

// flashCmd is mpmerge flash: hand a merged raw binary to esptool. UF2
// artifacts need no tool; they are copied onto the board's mass-storage
// drive instead.
var flashCmd = &cobra.Command{
	Use:   "flash <merged.bin>",
	Short: "flash a merged raw binary to an esp32-family board via esptool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return esptool.WriteFlash(cmd.Context(), esptool.Options{
			Chip: flashImpl.chip,
			Port: flashImpl.serial,
			Baud: flashImpl.baud,
		}, args[0])
	},
}

type flashImplConfig struct {
	chip   string
	serial string
	baud   string
}

var flashImpl flashImplConfig

func init() {
	flashCmd.Flags().StringVar(&flashImpl.chip, "chip", "esp32", "esptool chip type")
	flashCmd.Flags().StringVar(&flashImpl.serial, "serial", "", "serial port, empty lets esptool auto-detect")
	flashCmd.Flags().StringVar(&flashImpl.baud, "baud", "", "baud rate, empty uses esptool's default")
}
