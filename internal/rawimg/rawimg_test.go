package rawimg

import (
	"bytes"
	"errors"
	"testing"
)

func TestMerge(t *testing.T) {
	firmware := make([]byte, 0x1000)
	firmware[0] = 0xE9 // esp image magic, representative app bytes
	img := bytes.Repeat([]byte{0xAB}, 0x200)

	res, err := Merge(firmware, img, 0x800, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(res.Bytes), 0x1000; got != want {
		t.Fatalf("output length: got 0x%X, want 0x%X", got, want)
	}
	if res.Bytes[0] != 0xE9 {
		t.Error("firmware bytes before the region were modified")
	}
	if !bytes.Equal(res.Bytes[0x800:0xA00], img) {
		t.Error("image not found at start address")
	}
	for i, v := range res.Bytes[0xA00:] {
		if v != 0 {
			t.Fatalf("byte after region modified at 0x%X", 0xA00+i)
		}
	}
	if res.Overwrote {
		t.Error("overwrite reported for a zeroed region")
	}
}

func TestMergeExtends(t *testing.T) {
	firmware := []byte{1, 2, 3}
	img := []byte{9, 9}

	res, err := Merge(firmware, img, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 0, 0, 0, 0, 0, 9, 9}
	if !bytes.Equal(res.Bytes, want) {
		t.Errorf("got % x, want % x", res.Bytes, want)
	}
}

func TestMergeOverwrite(t *testing.T) {
	firmware := bytes.Repeat([]byte{0xFF}, 0x1000)
	img := make([]byte, 0x100)

	res, err := Merge(firmware, img, 0x800, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Overwrote {
		t.Error("overwrite of non-zero region not reported")
	}
}

func TestMergeOutOfBounds(t *testing.T) {
	firmware := make([]byte, 0x1000)
	img := make([]byte, 0x400)

	_, err := Merge(firmware, img, 0xE00, 0x1000)
	var oob *OutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("got %v, want OutOfBoundsError", err)
	}

	// Unknown flash size skips the check.
	if _, err := Merge(firmware, img, 0xE00, 0); err != nil {
		t.Fatal(err)
	}
}
