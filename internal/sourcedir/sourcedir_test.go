package sourcedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mpmerge/tools/internal/fsimage"
)

func TestRead(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "lib", "sensor"), 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"main.py":            "print('hi')\n",
		"boot.py":            "",
		"lib/sensor/bme.py":  "class BME280: pass\n",
		"lib/sensor/cal.bin": "\x00\x01\x02",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	tree, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := fsimage.SourceTree{
		{Path: "/boot.py", Data: []byte{}},
		{Path: "/lib", Dir: true},
		{Path: "/lib/sensor", Dir: true},
		{Path: "/lib/sensor/bme.py", Data: []byte("class BME280: pass\n")},
		{Path: "/lib/sensor/cal.bin", Data: []byte{0, 1, 2}},
		{Path: "/main.py", Data: []byte("print('hi')\n")},
	}
	if diff := cmp.Diff(want, tree); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("x=1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("main.py", filepath.Join(dir, "alias.py")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	tree, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(tree), 1; got != want {
		t.Fatalf("got %d entries, want %d: %v", got, want, tree)
	}
	if tree[0].Path != "/main.py" {
		t.Errorf("got %q, want /main.py", tree[0].Path)
	}
}

func TestReadMissingDir(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for a missing directory")
	}
}
