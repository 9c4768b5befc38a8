// Package partition resolves where the file system partition lives for a
// given port/board and firmware artifact.
//
// Resolution is an explicit two-step precedence rule:
//
//  1. Geometry advertised by the firmware container itself (the embedded
//     drive ranges of a UF2) wins. When several ranges are advertised, a
//     range exactly matching the registry entry for the port is chosen;
//     otherwise the single largest range. Several ranges sharing the
//     maximum size cannot be told apart and fail with
//     AmbiguousGeometryError.
//  2. Otherwise the static registry entry for the port is used.
//
// Both steps failing is an UnknownPortError.
package partition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mpmerge/tools/internal/portdisk"
	"github.com/mpmerge/tools/internal/uf2"
)

// AmbiguousGeometryError reports a container advertising multiple drive
// ranges of the same maximum size.
type AmbiguousGeometryError struct {
	Ranges []uf2.Range
}

func (e *AmbiguousGeometryError) Error() string {
	var parts []string
	for _, r := range e.Ranges {
		parts = append(parts, r.String())
	}
	return fmt.Sprintf("firmware advertises %d equally sized drive ranges (%s); specify the port/board explicitly",
		len(e.Ranges), strings.Join(parts, ", "))
}

// Resolve returns the effective partition geometry for port, preferring
// drive ranges found in the container over the registry. port may be
// empty when the container fully describes its drive.
func Resolve(reg *portdisk.Registry, port string, driveRanges []uf2.Range) (portdisk.Geometry, error) {
	info, lookupErr := reg.Lookup(port)

	if len(driveRanges) > 0 {
		r, err := pick(driveRanges, info, lookupErr == nil)
		if err != nil {
			return portdisk.Geometry{}, err
		}
		return portdisk.Geometry{
			StartAddr: int64(r.Start),
			Size:      r.Size(),
		}, nil
	}

	if lookupErr != nil {
		return portdisk.Geometry{}, lookupErr
	}
	return info.Geometry(), nil
}

func pick(ranges []uf2.Range, info portdisk.Info, haveInfo bool) (uf2.Range, error) {
	if haveInfo {
		for _, r := range ranges {
			if int64(r.Start) == info.StartAddr && r.Size() == info.ImageSize {
				return r, nil
			}
		}
	}
	largest := ranges[0]
	ties := []uf2.Range{largest}
	for _, r := range ranges[1:] {
		switch {
		case r.Size() > largest.Size():
			largest = r
			ties = []uf2.Range{r}
		case r.Size() == largest.Size():
			ties = append(ties, r)
		}
	}
	if len(ties) > 1 {
		return uf2.Range{}, &AmbiguousGeometryError{Ranges: ties}
	}
	return largest, nil
}

// IsUnknownPort reports whether err is an UnknownPortError.
func IsUnknownPort(err error) bool {
	var upe *portdisk.UnknownPortError
	return errors.As(err, &upe)
}
