// Package littlefs writes littlefs v2 file system images, the format
// MicroPython uses for its on-flash virtual file system.
//
// The writer builds the whole image in memory: metadata is stored in
// commits of XOR-chained tags inside metadata block pairs, small files are
// inlined into their directory's metadata, and larger files are laid out as
// CTZ skip lists. Block allocation follows insertion order, so identical
// input produces byte-identical images.
package littlefs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"path"
	"strings"
)

// DiskVersion values as encoded in the superblock.
const (
	DiskVersionLfs1 = 0x0001_0000
	DiskVersionLfs2 = 0x0002_0000
)

const (
	nameMax = 255
	fileMax = 0x7FFF_FFFF
	attrMax = 1022
)

// Metadata tag types.
const (
	typeReg          = 0x001
	typeDir          = 0x002
	typeSuperblock   = 0x0ff
	typeDirStruct    = 0x200
	typeInlineStruct = 0x201
	typeCtzStruct    = 0x202
	typeCreate       = 0x401
	typeCRC          = 0x500
	typeSoftTail     = 0x600
)

// Marker is the byte sequence a freshly committed superblock leaves at
// offset 4 of its metadata block: the superblock name tag (XORed against
// the initial tag state) followed by the file system name and the first
// bytes of the inline config struct tag. Scanners use it to locate
// embedded littlefs regions inside firmware images.
var Marker = []byte{0xF0, 0x0F, 0xFF, 0xF7, 'l', 'i', 't', 't', 'l', 'e', 'f', 's', 0x2F, 0xE0, 0x00, 0x10}

// NoSpaceError reports that the source data does not fit the image
// geometry, including metadata overhead.
type NoSpaceError struct {
	Required  int64
	Available int64
}

func (e *NoSpaceError) Error() string {
	return fmt.Sprintf("no space left in file system image: need at least %d bytes, have %d", e.Required, e.Available)
}

// Capacity returns the required and available byte counts; callers use it
// to re-report the failure in their own terms.
func (e *NoSpaceError) Capacity() (required, available int64) {
	return e.Required, e.Available
}

type entry struct {
	name string

	// file fields
	isFile bool
	inline []byte // inline file contents, nil for CTZ files
	head   uint32 // CTZ head block
	size   uint32 // file size in bytes

	// directory fields
	dir *directory
}

type directory struct {
	pair    [2]uint32 // metadata pair blocks; data goes into pair[0]
	entries []*entry
	byName  map[string]*entry
}

// Writer assembles a littlefs image of blockSize*blockCount bytes.
type Writer struct {
	blockSize  int
	blockCount int
	version    uint32

	img    []byte
	nalloc int

	root *directory
	dirs []*directory // tail chain, creation order
}

// New returns a Writer for an image of blockCount blocks of blockSize
// bytes. The root metadata pair occupies blocks 0 and 1.
func New(blockSize, blockCount int) (*Writer, error) {
	return NewVersion(blockSize, blockCount, DiskVersionLfs2)
}

// NewVersion is like New but selects the disk version advertised in the
// superblock. Only the v2 layout is written; v1 exists for completeness of
// the registry data and is rejected here.
func NewVersion(blockSize, blockCount int, version uint32) (*Writer, error) {
	if blockSize <= 0 || blockCount <= 0 {
		return nil, fmt.Errorf("invalid geometry: %d blocks of %d bytes", blockCount, blockSize)
	}
	if version != DiskVersionLfs2 {
		return nil, fmt.Errorf("unsupported littlefs disk version 0x%08x", version)
	}
	if blockCount < 2 {
		return nil, &NoSpaceError{Required: 2 * int64(blockSize), Available: int64(blockCount) * int64(blockSize)}
	}
	w := &Writer{
		blockSize:  blockSize,
		blockCount: blockCount,
		version:    version,
		img:        make([]byte, int64(blockSize)*int64(blockCount)),
		nalloc:     2,
		root: &directory{
			pair:   [2]uint32{0, 1},
			byName: make(map[string]*entry),
		},
	}
	w.dirs = append(w.dirs, w.root)
	return w, nil
}

// Size returns the image size in bytes.
func (w *Writer) Size() int64 { return int64(w.blockSize) * int64(w.blockCount) }

// inlineMax is the largest file stored inline in directory metadata
// rather than in its own CTZ list.
func (w *Writer) inlineMax() int {
	max := w.blockSize / 8
	if max > attrMax {
		max = attrMax
	}
	return max
}

func (w *Writer) alloc(n int) (uint32, error) {
	if w.nalloc+n > w.blockCount {
		return 0, &NoSpaceError{
			Required:  int64(w.nalloc+n) * int64(w.blockSize),
			Available: w.Size(),
		}
	}
	first := uint32(w.nalloc)
	w.nalloc += n
	return first, nil
}

// dir walks to (and implicitly creates) the directory at the given
// /-separated path.
func (w *Writer) dir(p string) (*directory, error) {
	cur := w.root
	for _, component := range strings.Split(p, "/") {
		if component == "" || component == "." {
			continue
		}
		ent, ok := cur.byName[component]
		if !ok {
			if len(component) > nameMax {
				return nil, fmt.Errorf("directory name %q exceeds %d bytes", component, nameMax)
			}
			first, err := w.alloc(2)
			if err != nil {
				return nil, err
			}
			d := &directory{
				pair:   [2]uint32{first, first + 1},
				byName: make(map[string]*entry),
			}
			ent = &entry{name: component, dir: d}
			cur.entries = append(cur.entries, ent)
			cur.byName[component] = ent
			w.dirs = append(w.dirs, d)
		}
		if ent.dir == nil {
			return nil, fmt.Errorf("path %q invalid: component %q identifies a file", p, component)
		}
		cur = ent.dir
	}
	return cur, nil
}

// Mkdir creates a directory and any missing parents, e.g. Mkdir("/lib/sub").
func (w *Writer) Mkdir(p string) error {
	_, err := w.dir(p)
	return err
}

// WriteFile stores a file at the given /-rooted path, creating parent
// directories implicitly. Paths are unique; writing the same path twice is
// an error.
func (w *Writer) WriteFile(p string, data []byte) error {
	if int64(len(data)) > fileMax {
		return fmt.Errorf("file %q exceeds littlefs file size limit", p)
	}
	d, err := w.dir(path.Dir(p))
	if err != nil {
		return err
	}
	name := path.Base(p)
	if name == "/" || name == "." || name == "" {
		return fmt.Errorf("invalid file path %q", p)
	}
	if len(name) > nameMax {
		return fmt.Errorf("file name %q exceeds %d bytes", name, nameMax)
	}
	if _, ok := d.byName[name]; ok {
		return fmt.Errorf("path %q already exists", p)
	}
	ent := &entry{name: name, isFile: true, size: uint32(len(data))}
	if len(data) <= w.inlineMax() {
		ent.inline = append([]byte(nil), data...)
	} else {
		head, err := w.writeCtz(data)
		if err != nil {
			return err
		}
		ent.head = head
	}
	d.entries = append(d.entries, ent)
	d.byName[name] = ent
	return nil
}

// ctzPointers returns the number of skip-list pointers stored at the start
// of the data block with the given index.
func ctzPointers(index int) int {
	if index == 0 {
		return 0
	}
	n := 1
	for index&1 == 0 {
		n++
		index >>= 1
	}
	return n
}

// writeCtz lays the file out as a CTZ skip list and returns the head (the
// block holding the tail of the data, pointed to by the file's struct tag).
func (w *Writer) writeCtz(data []byte) (uint32, error) {
	// Count blocks first so the allocation is all-or-nothing.
	nblocks := 0
	for off := 0; off < len(data); nblocks++ {
		off += w.blockSize - 4*ctzPointers(nblocks)
	}
	first, err := w.alloc(nblocks)
	if err != nil {
		return 0, err
	}
	off := 0
	for i := 0; i < nblocks; i++ {
		block := w.img[(int(first)+i)*w.blockSize : (int(first)+i+1)*w.blockSize]
		p := 0
		for j := 0; j < ctzPointers(i); j++ {
			binary.LittleEndian.PutUint32(block[p:], first+uint32(i)-uint32(1<<j))
			p += 4
		}
		n := copy(block[p:], data[off:])
		off += n
	}
	return first + uint32(nblocks) - 1, nil
}

// Flush writes all metadata pairs into the image and returns it. The
// returned slice aliases the writer's buffer; the writer must not be used
// afterwards.
func (w *Writer) Flush() ([]byte, error) {
	for i, d := range w.dirs {
		var tail *directory
		if i+1 < len(w.dirs) {
			tail = w.dirs[i+1]
		}
		if err := w.commitDir(d, d == w.root, tail); err != nil {
			return nil, err
		}
	}
	return w.img, nil
}

// commitDir renders the metadata block of one directory pair.
func (w *Writer) commitDir(d *directory, isRoot bool, tail *directory) error {
	block := w.img[int(d.pair[0])*w.blockSize : (int(d.pair[0])+1)*w.blockSize]
	c := newCommitter(block)
	c.revision(1)

	id := 0
	if isRoot {
		// The superblock entry occupies id 0 of the root pair. Its tag
		// bytes are what scanners recognize as Marker.
		c.tag(typeSuperblock, 0, []byte("littlefs"))
		var cfg [24]byte
		binary.LittleEndian.PutUint32(cfg[0:], w.version)
		binary.LittleEndian.PutUint32(cfg[4:], uint32(w.blockSize))
		binary.LittleEndian.PutUint32(cfg[8:], uint32(w.blockCount))
		binary.LittleEndian.PutUint32(cfg[12:], nameMax)
		binary.LittleEndian.PutUint32(cfg[16:], fileMax)
		binary.LittleEndian.PutUint32(cfg[20:], attrMax)
		c.tag(typeInlineStruct, 0, cfg[:])
		c.crc()
		id = 1
	}

	for _, ent := range d.entries {
		c.tag(typeCreate, id, nil)
		if ent.isFile {
			c.tag(typeReg, id, []byte(ent.name))
			if ent.inline != nil {
				c.tag(typeInlineStruct, id, ent.inline)
			} else {
				var ctz [8]byte
				binary.LittleEndian.PutUint32(ctz[0:], ent.head)
				binary.LittleEndian.PutUint32(ctz[4:], ent.size)
				c.tag(typeCtzStruct, id, ctz[:])
			}
		} else {
			c.tag(typeDir, id, []byte(ent.name))
			var pair [8]byte
			binary.LittleEndian.PutUint32(pair[0:], ent.dir.pair[0])
			binary.LittleEndian.PutUint32(pair[4:], ent.dir.pair[1])
			c.tag(typeDirStruct, id, pair[:])
		}
		id++
	}
	if tail != nil {
		var pair [8]byte
		binary.LittleEndian.PutUint32(pair[0:], tail.pair[0])
		binary.LittleEndian.PutUint32(pair[4:], tail.pair[1])
		c.tag(typeSoftTail, 0x3ff, pair[:])
	}
	if len(d.entries) > 0 || tail != nil || !isRoot {
		c.crc()
	}
	if c.err != nil {
		if c.overflow {
			return &NoSpaceError{
				Required:  w.Size() + int64(w.blockSize),
				Available: w.Size(),
			}
		}
		return c.err
	}
	return nil
}

// committer writes XOR-chained tags plus commit CRCs into one metadata
// block.
type committer struct {
	block    []byte
	off      int
	ptag     uint32 // previous tag in the XOR chain
	crcStart int    // start of the region covered by the next CRC tag
	err      error
	overflow bool
}

func newCommitter(block []byte) *committer {
	return &committer{block: block, ptag: 0xFFFF_FFFF}
}

func (c *committer) revision(rev uint32) {
	binary.LittleEndian.PutUint32(c.block[0:], rev)
	c.off = 4
}

func (c *committer) write(p []byte) {
	if c.err != nil {
		return
	}
	// Leave room for the closing CRC tag and checksum.
	if c.off+len(p)+8 > len(c.block) {
		c.err = fmt.Errorf("metadata block overflow")
		c.overflow = true
		return
	}
	copy(c.block[c.off:], p)
	c.off += len(p)
}

func (c *committer) tag(typ, id int, data []byte) {
	tag := uint32(typ)<<20 | uint32(id)<<10 | uint32(len(data))
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], tag^c.ptag)
	c.ptag = tag
	c.write(buf[:])
	c.write(data)
}

// crc closes the current commit with a CRC tag covering everything since
// the previous commit (or the block start, revision included).
func (c *committer) crc() {
	if c.err != nil {
		return
	}
	tag := uint32(typeCRC)<<20 | uint32(0x3ff)<<10 | 4
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], tag^c.ptag)
	c.write(buf[:])

	sum := crc32.Update(0, crc32.IEEETable, c.block[c.crcStart:c.off])
	binary.LittleEndian.PutUint32(buf[:], ^sum)
	c.write(buf[:])

	// The CRC tag resets the XOR chain for the next commit.
	c.ptag = 0xFFFF_FFFF
	c.crcStart = c.off
}

// IsFormatted reports whether the image carries a littlefs superblock in
// its first block.
func IsFormatted(img []byte, blockSize int) bool {
	if len(img) < blockSize || blockSize < 4+len(Marker) {
		return false
	}
	return bytes.Equal(img[4:4+len(Marker)], Marker)
}

// FindSuperblocks returns the indices of all blocks whose contents include
// the superblock marker. A freshly built image has exactly one, at block 0.
func FindSuperblocks(img []byte, blockSize int) []int {
	var blocks []int
	for i := 0; i+blockSize <= len(img); i += blockSize {
		if bytes.Contains(img[i:i+blockSize], Marker) {
			blocks = append(blocks, i/blockSize)
		}
	}
	return blocks
}
