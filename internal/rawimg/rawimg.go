// Package rawimg merges a file system image into a raw firmware binary at
// a flash byte offset, the layout used by the esp32 family.
package rawimg

import (
	"fmt"
)

// OutOfBoundsError reports a merge that would extend past the declared
// flash capacity.
type OutOfBoundsError struct {
	StartAddr int64
	Length    int64
	FlashSize int64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("image of %d bytes at 0x%08X ends past the %d byte flash", e.Length, e.StartAddr, e.FlashSize)
}

// Result is the outcome of a raw merge.
type Result struct {
	Bytes []byte

	// Overwrote reports that the target region already held non-zero
	// bytes, i.e. an existing file system was replaced. This is the
	// normal re-merge case and is surfaced as a warning, not an error.
	Overwrote bool
}

// Merge writes img into a copy of firmware at startAddr. The gap between
// the end of the firmware and startAddr, if any, is zero-filled. flashSize
// is the declared flash capacity; zero skips the bounds check.
//
// The output length is max(len(firmware), startAddr+len(img)).
func Merge(firmware, img []byte, startAddr, flashSize int64) (*Result, error) {
	if startAddr < 0 {
		return nil, &OutOfBoundsError{StartAddr: startAddr, Length: int64(len(img)), FlashSize: flashSize}
	}
	end := startAddr + int64(len(img))
	if flashSize != 0 && end > flashSize {
		return nil, &OutOfBoundsError{StartAddr: startAddr, Length: int64(len(img)), FlashSize: flashSize}
	}

	size := int64(len(firmware))
	if end > size {
		size = end
	}
	out := make([]byte, size)
	copy(out, firmware)

	overwrote := false
	if startAddr < int64(len(firmware)) {
		for _, v := range firmware[startAddr:min64(end, int64(len(firmware)))] {
			if v != 0 {
				overwrote = true
				break
			}
		}
	}
	copy(out[startAddr:end], img)
	return &Result{Bytes: out, Overwrote: overwrote}, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
