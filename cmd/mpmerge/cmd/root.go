package cmd

import (
	"log"
	"strings"

	"github.com/mpmerge/tools/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "mpmerge",
	Short: "merge MicroPython source files into a firmware image",
	Long: `mpmerge builds a littlefs file system image from a source directory and
merges it into a MicroPython firmware artifact at the board's file system
partition, producing a single flashable file. Raw binaries (esp32 .bin)
and UF2 block containers (rp2 .uf2) are supported.`,
	Version: version.ReadBrief(),
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(mkfsCmd)
	rootCmd.AddCommand(flashCmd)
}

// initConfig wires the optional mpmerge.yaml and the environment
// (PORTBOARD, SRC, FIRMWARE, BUILD) into flag defaults.
func initConfig() {
	viper.SetConfigName("mpmerge")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("reading mpmerge.yaml: %v", err)
		}
	}
}
