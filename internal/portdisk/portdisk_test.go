package portdisk

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuiltinTable(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			info, err := r.Lookup(name)
			if err != nil {
				t.Fatal(err)
			}
			if info.ImageSize != info.EndAddr-info.StartAddr {
				t.Errorf("inconsistent geometry: size 0x%X, range 0x%X-0x%X",
					info.ImageSize, info.StartAddr, info.EndAddr)
			}
			if got, want := int64(info.BlockCount)*int64(info.BlockSize), info.ImageSize; got != want {
				t.Errorf("block count covers 0x%X bytes; want 0x%X", got, want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("exact", func(t *testing.T) {
		info, err := r.Lookup("rp2-pico_w")
		if err != nil {
			t.Fatal(err)
		}
		want := Geometry{StartAddr: 0x1012_C000, Size: 0xD4000}
		if diff := cmp.Diff(want, info.Geometry()); diff != "" {
			t.Errorf("geometry mismatch (-want +got):\n%s", diff)
		}
		if got, want := info.BlockCount, 212; got != want {
			t.Errorf("block count: got %d, want %d", got, want)
		}
	})

	t.Run("generic fallback", func(t *testing.T) {
		info, err := r.Lookup("esp32")
		if err != nil {
			t.Fatal(err)
		}
		if got, want := info.Name, "esp32-generic"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("unknown port", func(t *testing.T) {
		_, err := r.Lookup("esp99-unknown")
		var upe *UnknownPortError
		if !errors.As(err, &upe) {
			t.Fatalf("got %v, want UnknownPortError", err)
		}
		if got, want := upe.Port, "esp99-unknown"; got != want {
			t.Errorf("error names port %q, want %q", got, want)
		}
	})
}

func TestNewRegistryExtra(t *testing.T) {
	t.Run("derives end address", func(t *testing.T) {
		r, err := NewRegistry(Info{
			Name:      "esp32-custom",
			StartAddr: 0x30_0000,
			ImageSize: 0x10_0000,
		})
		if err != nil {
			t.Fatal(err)
		}
		info, err := r.Lookup("esp32-custom")
		if err != nil {
			t.Fatal(err)
		}
		if got, want := info.EndAddr, int64(0x40_0000); got != want {
			t.Errorf("end address: got 0x%X, want 0x%X", got, want)
		}
		if got, want := info.BlockSize, BlockSize; got != want {
			t.Errorf("block size default: got %d, want %d", got, want)
		}
	})

	t.Run("overrides builtin", func(t *testing.T) {
		r, err := NewRegistry(Info{
			Name:      "rp2-pico",
			StartAddr: 0x1010_0000,
			EndAddr:   0x1020_0000,
		})
		if err != nil {
			t.Fatal(err)
		}
		info, err := r.Lookup("rp2-pico")
		if err != nil {
			t.Fatal(err)
		}
		if got, want := info.StartAddr, int64(0x1010_0000); got != want {
			t.Errorf("start address: got 0x%X, want 0x%X", got, want)
		}
	})

	t.Run("rejects bad entry", func(t *testing.T) {
		for _, info := range []Info{
			{Name: "x-y"},                            // no geometry
			{Name: "", StartAddr: 1, ImageSize: 2},   // no name
			{Name: "x-y", ImageSize: 0x1000},         // no start
			{Name: "x-y", StartAddr: 4, EndAddr: 2},  // negative size
			{Name: "x-y", StartAddr: 4, EndAddr: 10}, // smaller than a block
		} {
			if _, err := NewRegistry(info); err == nil {
				t.Errorf("NewRegistry(%+v) succeeded, want error", info)
			}
		}
	})
}
