package merge

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// TODO: get these into golang.org/x/sys/unix
	dkiocGetBlockCount = 0x40086419
	dkiocGetBlockSize  = 0x40046418
)

func deviceSize(fd uintptr) (uint64, error) {
	var (
		blocksize  uint32
		blockcount uint64
	)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, dkiocGetBlockSize, uintptr(unsafe.Pointer(&blocksize))); errno != 0 {
		return 0, errno
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, dkiocGetBlockCount, uintptr(unsafe.Pointer(&blockcount))); errno != 0 {
		return 0, errno
	}
	return uint64(blocksize) * blockcount, nil
}
