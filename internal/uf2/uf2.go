// Package uf2 reads, inspects and extends UF2 firmware containers.
//
// A UF2 file is a sequence of self-describing 512-byte blocks, each
// carrying up to 476 payload bytes, the flash address the payload belongs
// at, optional board family metadata, and its position in the block
// stream (blockNo out of numBlocks). Because numBlocks is embedded in
// every block, any append must be followed by a renumbering pass over the
// whole stream; a container with stale counts is silently truncated by
// flashing tools.
package uf2

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic words of the UF2 block format.
const (
	MagicStart0 = 0x0A324655 // "UF2\n"
	MagicStart1 = 0x9E5D5157
	MagicEnd    = 0x0AB16F30
)

const (
	// BlockSize is the on-disk size of every UF2 block.
	BlockSize = 512

	// DataSize is the payload capacity of a block (512 - 32 header - 4
	// trailing magic).
	DataSize = 476
)

// Block flags.
const (
	FlagNoFlash         = 0x0000_0001
	FlagFileContainer   = 0x0000_1000
	FlagFamilyIDPresent = 0x0000_2000
	FlagMD5Present      = 0x0000_4000
	FlagExtensionTags   = 0x0000_8000
)

// Block is a single UF2 block. The magic words are implicit; they are
// validated on parse and regenerated on write.
type Block struct {
	Flags       uint32
	TargetAddr  uint32
	PayloadSize uint32
	BlockNo     uint32
	NumBlocks   uint32

	// Reserved holds the family ID when FlagFamilyIDPresent is set, the
	// file size otherwise.
	Reserved uint32

	Data [DataSize]byte
}

// Payload returns the valid part of the block's data.
func (b *Block) Payload() []byte {
	n := b.PayloadSize
	if n > DataSize {
		n = DataSize
	}
	return b.Data[:n]
}

// FamilyID returns the block's board family, if declared.
func (b *Block) FamilyID() (uint32, bool) {
	if b.Flags&FlagFamilyIDPresent == 0 {
		return 0, false
	}
	return b.Reserved, true
}

// MalformedContainerError reports a block stream that does not parse as
// UF2.
type MalformedContainerError struct {
	Offset int64
	Reason string
}

func (e *MalformedContainerError) Error() string {
	return fmt.Sprintf("malformed UF2 container at byte offset %d: %s", e.Offset, e.Reason)
}

// CapacityError reports an image that does not fit the drive range it is
// being appended into.
type CapacityError struct {
	Required  int64
	Available int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("image does not fit the drive range: need %d bytes, range holds %d", e.Required, e.Available)
}

// File is an in-memory UF2 container.
type File struct {
	Blocks []*Block
}

// Parse reads a complete UF2 block stream. Any block with bad magic words,
// an oversized payload declaration, or a short trailing read fails with
// MalformedContainerError.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	var buf [BlockSize]byte
	for offset := int64(0); ; offset += BlockSize {
		_, err := io.ReadFull(r, buf[:])
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			return nil, &MalformedContainerError{Offset: offset, Reason: "file size is not a multiple of 512"}
		}
		if err != nil {
			return nil, err
		}
		block, err := unmarshalBlock(buf[:], offset)
		if err != nil {
			return nil, err
		}
		f.Blocks = append(f.Blocks, block)
	}
	if len(f.Blocks) == 0 {
		return nil, &MalformedContainerError{Offset: 0, Reason: "no blocks"}
	}
	return f, nil
}

func unmarshalBlock(buf []byte, offset int64) (*Block, error) {
	le := binary.LittleEndian
	if le.Uint32(buf[0:]) != MagicStart0 || le.Uint32(buf[4:]) != MagicStart1 {
		return nil, &MalformedContainerError{Offset: offset, Reason: "bad start magic"}
	}
	if le.Uint32(buf[508:]) != MagicEnd {
		return nil, &MalformedContainerError{Offset: offset, Reason: "bad end magic"}
	}
	b := &Block{
		Flags:       le.Uint32(buf[8:]),
		TargetAddr:  le.Uint32(buf[12:]),
		PayloadSize: le.Uint32(buf[16:]),
		BlockNo:     le.Uint32(buf[20:]),
		NumBlocks:   le.Uint32(buf[24:]),
		Reserved:    le.Uint32(buf[28:]),
	}
	if b.PayloadSize > DataSize {
		return nil, &MalformedContainerError{
			Offset: offset,
			Reason: fmt.Sprintf("payload size %d exceeds %d", b.PayloadSize, DataSize),
		}
	}
	copy(b.Data[:], buf[32:32+DataSize])
	return b, nil
}

func marshalBlock(b *Block, buf []byte) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:], MagicStart0)
	le.PutUint32(buf[4:], MagicStart1)
	le.PutUint32(buf[8:], b.Flags)
	le.PutUint32(buf[12:], b.TargetAddr)
	le.PutUint32(buf[16:], b.PayloadSize)
	le.PutUint32(buf[20:], b.BlockNo)
	le.PutUint32(buf[24:], b.NumBlocks)
	le.PutUint32(buf[28:], b.Reserved)
	copy(buf[32:32+DataSize], b.Data[:])
	le.PutUint32(buf[508:], MagicEnd)
}

// WriteTo serializes all blocks in stream order.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var buf [BlockSize]byte
	var written int64
	for _, b := range f.Blocks {
		marshalBlock(b, buf[:])
		n, err := w.Write(buf[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// FamilyID returns the first declared family in the container.
func (f *File) FamilyID() (uint32, bool) {
	for _, b := range f.Blocks {
		if id, ok := b.FamilyID(); ok {
			return id, true
		}
	}
	return 0, false
}

// AppendImage splits img into chunkSize payloads and appends them as new
// blocks starting at startAddr, propagating the container's family ID. A
// zero chunkSize uses the full payload capacity. driveEnd, when non-zero,
// bounds the write: startAddr+len(img) past it fails with CapacityError
// before any block is appended.
//
// After appending, blockNo and numBlocks are rewritten across the entire
// stream in one explicit pass. AppendImage returns the newly created
// blocks (still part of the container) so callers can also save the image
// region on its own.
func (f *File) AppendImage(img []byte, startAddr, driveEnd uint32, chunkSize int) ([]*Block, error) {
	if chunkSize == 0 {
		chunkSize = DataSize
	}
	if chunkSize < 0 || chunkSize > DataSize {
		return nil, fmt.Errorf("chunk size %d not in 1..%d", chunkSize, DataSize)
	}
	if driveEnd != 0 && int64(startAddr)+int64(len(img)) > int64(driveEnd) {
		return nil, &CapacityError{
			Required:  int64(len(img)),
			Available: int64(driveEnd) - int64(startAddr),
		}
	}
	family, hasFamily := f.FamilyID()

	var appended []*Block
	for i := 0; i < len(img); i += chunkSize {
		chunk := img[i:]
		if len(chunk) > chunkSize {
			chunk = chunk[:chunkSize]
		}
		b := &Block{
			TargetAddr:  startAddr + uint32(i),
			PayloadSize: uint32(len(chunk)),
		}
		if hasFamily {
			b.Flags |= FlagFamilyIDPresent
			b.Reserved = family
		}
		copy(b.Data[:], chunk)
		appended = append(appended, b)
	}
	f.Blocks = append(f.Blocks, appended...)
	f.Renumber()
	return appended, nil
}

// Renumber rewrites blockNo and numBlocks on every block, old and new.
// This runs as a separate pass over the full stream on purpose: numBlocks
// is embedded per block, and updating it incrementally during an append
// leaves stale counts behind.
func (f *File) Renumber() {
	total := uint32(len(f.Blocks))
	for i, b := range f.Blocks {
		b.BlockNo = uint32(i)
		b.NumBlocks = total
	}
}
