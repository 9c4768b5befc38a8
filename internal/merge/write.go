package merge

import (
	"fmt"
	"os"

	"github.com/google/renameio/v2"
)

// WriteFile writes the merged artifact to path. Regular files are written
// atomically (temp file plus rename), so an interrupted write leaves any
// previous output untouched. Block devices are written in place after
// checking the image fits.
func (r *Result) WriteFile(path string) error {
	st, err := os.Stat(path)
	if err == nil && st.Mode()&os.ModeDevice != 0 {
		return r.writeDevice(path)
	}
	return renameio.WriteFile(path, r.Output, 0644)
}

func (r *Result) writeDevice(path string) error {
	o, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer o.Close()
	devsize, err := deviceSize(o.Fd())
	if err != nil {
		return fmt.Errorf("querying size of %s: %v", path, err)
	}
	if devsize < uint64(len(r.Output)) {
		return fmt.Errorf("image of %d bytes does not fit device %s (%d bytes)", len(r.Output), path, devsize)
	}
	if _, err := o.Write(r.Output); err != nil {
		return err
	}
	return o.Close()
}
