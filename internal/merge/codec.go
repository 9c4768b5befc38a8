package merge

import (
	"github.com/mpmerge/tools/internal/fsimage"
	"github.com/mpmerge/tools/internal/littlefs"
)

// lfsCodec plugs the littlefs writer into the image builder.
type lfsCodec struct {
	version uint32
}

// Codec returns the fsimage codec for the given littlefs disk version.
func Codec(version uint32) fsimage.Codec {
	return &lfsCodec{version: version}
}

func (c *lfsCodec) CaseSensitive() bool { return true }

func (c *lfsCodec) Format(blockSize, blockCount int) (fsimage.Image, error) {
	w, err := littlefs.NewVersion(blockSize, blockCount, c.version)
	if err != nil {
		return nil, err
	}
	return &lfsImage{w: w}, nil
}

type lfsImage struct {
	w *littlefs.Writer
}

func (img *lfsImage) Mkdir(path string) error { return img.w.Mkdir(path) }

func (img *lfsImage) WriteFile(path string, data []byte) error { return img.w.WriteFile(path, data) }

func (img *lfsImage) Bytes() ([]byte, error) { return img.w.Flush() }
