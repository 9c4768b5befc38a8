package uf2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mpmerge/tools/internal/littlefs"
)

// testContainer builds a container of contiguous 256-byte payload blocks
// starting at addr, with each payload filled with a non-zero byte.
func testContainer(addr uint32, blocks int) *File {
	f := &File{}
	for i := 0; i < blocks; i++ {
		b := &Block{
			Flags:       FlagFamilyIDPresent,
			TargetAddr:  addr + uint32(i)*256,
			PayloadSize: 256,
			Reserved:    0xE48BFF56, // RP2040
		}
		for j := 0; j < 256; j++ {
			b.Data[j] = 0x5A
		}
		f.Blocks = append(f.Blocks, b)
	}
	f.Renumber()
	return f
}

func TestParseRoundTrip(t *testing.T) {
	f := testContainer(0x1000_0000, 8)
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.Len(), 8*BlockSize; got != want {
		t.Fatalf("serialized size: got %d, want %d", got, want)
	}
	parsed, err := Parse(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(f.Blocks, parsed.Blocks); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMalformed(t *testing.T) {
	good := func() []byte {
		var buf bytes.Buffer
		if _, err := testContainer(0x1000_0000, 2).WriteTo(&buf); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	for _, tt := range []struct {
		name   string
		mangle func(b []byte) []byte
	}{
		{"empty", func(b []byte) []byte { return nil }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-100] }},
		{"bad start magic", func(b []byte) []byte { b[0] = 0xFF; return b }},
		{"bad end magic", func(b []byte) []byte { b[508] = 0xFF; return b }},
		{"oversized payload", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[16:], DataSize+1)
			return b
		}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(bytes.NewReader(tt.mangle(good())))
			var mce *MalformedContainerError
			if !errors.As(err, &mce) {
				t.Fatalf("got %v, want MalformedContainerError", err)
			}
		})
	}
}

func TestRanges(t *testing.T) {
	f := testContainer(0x1000_0000, 4)
	// Second region after an address gap.
	second := testContainer(0x1010_0000, 2)
	f.Blocks = append(f.Blocks, second.Blocks...)
	f.Renumber()

	want := []Range{
		{Start: 0x1000_0000, End: 0x1000_0400},
		{Start: 0x1010_0000, End: 0x1010_0200},
	}
	if diff := cmp.Diff(want, f.Ranges()); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
}

func TestFamilies(t *testing.T) {
	f := testContainer(0x1000_0000, 2)
	families := f.Families()
	if got, want := len(families), 1; got != want {
		t.Fatalf("got %d families, want %d", got, want)
	}
	if got, want := families[0xE48BFF56], uint32(0x1000_0000); got != want {
		t.Errorf("family address: got 0x%08X, want 0x%08X", got, want)
	}
	if got, want := FamilyName(0xE48BFF56), "RP2040"; got != want {
		t.Errorf("family name: got %q, want %q", got, want)
	}
	if got, want := FamilyName(0xDEADBEEF), "unknown"; got != want {
		t.Errorf("family name: got %q, want %q", got, want)
	}
}

func TestAppendImage(t *testing.T) {
	f := testContainer(0x1000_0000, 4)
	img := bytes.Repeat([]byte{0xC3}, 1000)

	appended, err := f.AppendImage(img, 0x1012_C000, 0x1020_0000, 256)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(appended), 4; got != want { // ceil(1000/256)
		t.Fatalf("appended %d blocks, want %d", got, want)
	}
	if got, want := len(f.Blocks), 8; got != want {
		t.Fatalf("container has %d blocks, want %d", got, want)
	}

	// Every block, old and new, must carry the final count and its
	// position.
	for i, b := range f.Blocks {
		if got, want := b.NumBlocks, uint32(8); got != want {
			t.Fatalf("block %d: numBlocks %d, want %d", i, got, want)
		}
		if got, want := b.BlockNo, uint32(i); got != want {
			t.Fatalf("block %d: blockNo %d", i, got)
		}
	}

	// Family propagated, addresses sequential, final block short.
	last := appended[3]
	if _, ok := last.FamilyID(); !ok {
		t.Error("appended block lost the family flag")
	}
	if got, want := last.TargetAddr, uint32(0x1012_C300); got != want {
		t.Errorf("last address: got 0x%08X, want 0x%08X", got, want)
	}
	if got, want := last.PayloadSize, uint32(1000-3*256); got != want {
		t.Errorf("last payload size: got %d, want %d", got, want)
	}
}

func TestAppendImageCapacity(t *testing.T) {
	f := testContainer(0x1000_0000, 4)
	img := make([]byte, 0x2000)
	_, err := f.AppendImage(img, 0x1012_C000, 0x1012_D000, 256)
	var ce *CapacityError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want CapacityError", err)
	}
	if got, want := ce.Available, int64(0x1000); got != want {
		t.Errorf("available: got %d, want %d", got, want)
	}
	if got, want := len(f.Blocks), 4; got != want {
		t.Errorf("failed append modified the container: %d blocks", got)
	}
}

func TestSuperblocksAndDriveRanges(t *testing.T) {
	f := testContainer(0x1000_0000, 4)

	// Build a littlefs image and append it; its superblock must be
	// detected at the drive start.
	w, err := littlefs.New(4096, 4)
	if err != nil {
		t.Fatal(err)
	}
	img, err := w.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.AppendImage(img, 0x1012_C000, 0, 256); err != nil {
		t.Fatal(err)
	}

	super := f.Superblocks()
	if len(super) != 1 {
		t.Fatalf("got %d superblocks, want 1", len(super))
	}
	if got, want := super[0].Addr, uint32(0x1012_C000); got != want {
		t.Errorf("superblock address: got 0x%08X, want 0x%08X", got, want)
	}

	drives := f.DriveRanges()
	if len(drives) != 1 {
		t.Fatalf("got %d drive ranges, want 1", len(drives))
	}
	want := Range{Start: 0x1012_C000, End: 0x1012_C000 + uint32(len(img))}
	if diff := cmp.Diff(want, drives[0]); diff != "" {
		t.Errorf("drive range mismatch (-want +got):\n%s", diff)
	}
}

func TestIsUF2(t *testing.T) {
	var buf bytes.Buffer
	if _, err := testContainer(0, 1).WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !IsUF2(buf.Bytes()) {
		t.Error("serialized container not recognized")
	}
	if IsUF2([]byte("not a uf2 file")) {
		t.Error("random bytes recognized as UF2")
	}
	if IsUF2(nil) {
		t.Error("nil recognized as UF2")
	}
}
