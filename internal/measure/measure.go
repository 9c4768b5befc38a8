// Package measure prints a single-line progress indicator around a slow
// step, e.g. "[merging]" turning into "[done] in 0.52s, 3392 blocks".
package measure

import (
	"fmt"
	"strings"
	"time"
)

// Interactively prints "[status]" and returns a done func that replaces
// the line with the elapsed time plus an optional fragment.
func Interactively(status string) (done func(fragment string)) {
	status = "[" + status + "]"
	fmt.Print(status)
	start := time.Now()
	return func(fragment string) {
		elapsed := time.Since(start)
		// Pad with the old status length so no stale characters remain.
		fmt.Printf("\r[done] in %.2fs%s%s\n",
			elapsed.Seconds(),
			fragment,
			strings.Repeat(" ", len(status)))
	}
}
