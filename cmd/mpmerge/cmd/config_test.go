package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpmerge/tools/internal/uf2"
)

func TestDetectPort(t *testing.T) {
	for _, tt := range []struct {
		port     string
		firmware string
		want     string
	}{
		{"auto", "esp32-20230426-v1.20.0.bin", "esp32"},
		{"auto", "esp32spiram-20220618-v1.19.1.bin", "esp32"},
		{"auto", "rp2-pico_w-20230426-v1.20.0.uf2", "rp2"},
		{"auto", "downloads/esp32-20230426-v1.20.0.bin", "esp32"},
		{"esp32-ota", "esp32-20230426-v1.20.0.bin", "esp32-ota"},
		{"rp2-pico_w", "whatever.uf2", "rp2-pico_w"},
	} {
		if got := detectPort(tt.port, tt.firmware); got != tt.want {
			t.Errorf("detectPort(%q, %q) = %q, want %q", tt.port, tt.firmware, got, tt.want)
		}
	}
}

func TestFindFirmwareFile(t *testing.T) {
	dir := t.TempDir()
	fw := filepath.Join(dir, "custom.bin")
	if err := os.WriteFile(fw, []byte{0xE9}, 0644); err != nil {
		t.Fatal(err)
	}
	got, err := findFirmware(fw, "esp32")
	if err != nil {
		t.Fatal(err)
	}
	if got != fw {
		t.Errorf("got %q, want %q", got, fw)
	}
}

func TestFindFirmwareNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{
		"esp32-20220618-v1.19.1.bin",
		"esp32-20230426-v1.20.0.bin", // newest mtime
		"rp2-pico_w-20230426-v1.20.0.uf2",
		"notes.txt",
	} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte{1}, 0644); err != nil {
			t.Fatal(err)
		}
		mod := base.Add(time.Duration(i) * time.Minute)
		if name == "esp32-20230426-v1.20.0.bin" {
			mod = base.Add(time.Hour)
		}
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
	}

	got, err := findFirmware(dir, "esp32")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "esp32-20230426-v1.20.0.bin"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := findFirmware(dir, "samd"); err == nil {
		t.Error("expected an error when no artifact matches the port")
	}
}

func TestFamilyList(t *testing.T) {
	block := func(addr, family uint32) *uf2.Block {
		return &uf2.Block{
			Flags:      uf2.FlagFamilyIDPresent,
			TargetAddr: addr,
			Reserved:   family,
		}
	}
	f := &uf2.File{Blocks: []*uf2.Block{
		block(0x2000_0000, 0xC47E5767), // ESP32S3
		block(0x1000_0000, 0xE48BFF56), // RP2040
	}}

	want := "RP2040 (0xE48BFF56) at 0x10000000, ESP32S3 (0xC47E5767) at 0x20000000"
	// Map iteration order must not leak into the report.
	for i := 0; i < 10; i++ {
		if got := familyList(f); got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestFindFirmwareMissing(t *testing.T) {
	if _, err := findFirmware(filepath.Join(t.TempDir(), "nope"), "esp32"); err == nil {
		t.Error("expected an error for a missing path")
	}
}
