// Binary mpmerge bundles MicroPython source files into firmware images:
// it builds a littlefs image from a source directory and merges it into a
// firmware artifact (raw .bin or .uf2) at the board's file system
// partition, producing a single flashable file.
package main

import "github.com/mpmerge/tools/cmd/mpmerge/cmd"

func main() {
	cmd.Execute()
}
