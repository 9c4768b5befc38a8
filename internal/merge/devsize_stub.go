//go:build !linux && !darwin

package merge

import "fmt"

func deviceSize(fd uintptr) (uint64, error) {
	return 0, fmt.Errorf("writing to block devices is not supported on this operating system; write to a file instead")
}
