package pk3

import (
	"archive/zip"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// writeTestPK3 creates a pk3 in a temp dir containing the given files.
func writeTestPK3(t *testing.T, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pak0.pk3")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create pk3: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if _, err := zw.Create("textures/empty_dir/"); err != nil {
		t.Fatalf("failed to add directory: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish pk3: %v", err)
	}
	return path
}

func testFiles() map[string]string {
	return map[string]string{
		"scripts/base_wall.shader":        "textures/base_wall/concrete\n{\n}\n",
		"Scripts/Sfx.shader":              "textures/sfx/flame1\n{\n}\n",
		"textures/base_wall/concrete.tga": "TGA",
		"maps/q3dm17.bsp":                 "IBSP",
	}
}

func TestOpen(t *testing.T) {
	archive, err := Open(writeTestPK3(t, testFiles()))
	if err != nil {
		t.Fatalf("failed to open pk3: %v", err)
	}
	defer archive.Close()

	files := archive.List()
	if len(files) != 4 {
		t.Fatalf("expected 4 files (directories skipped), got %d: %v", len(files), files)
	}
	if files[0] != "maps/q3dm17.bsp" {
		t.Errorf("expected sorted list, first = %s", files[0])
	}
}

func TestOpen_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pk3")
	if err := os.WriteFile(path, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error opening invalid archive")
	}
}

func TestContainsAndRead(t *testing.T) {
	archive, err := Open(writeTestPK3(t, testFiles()))
	if err != nil {
		t.Fatalf("failed to open pk3: %v", err)
	}
	defer archive.Close()

	tests := []struct {
		path string
		want bool
	}{
		{"textures/base_wall/concrete.tga", true},
		{"Textures\\Base_Wall\\Concrete.TGA", true},
		{"scripts/sfx.shader", true},
		{"textures/missing.tga", false},
	}
	for _, tt := range tests {
		if got := archive.Contains(tt.path); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	data, err := archive.Read("MAPS/Q3DM17.BSP")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "IBSP" {
		t.Errorf("Read returned %q", data)
	}

	if _, err := archive.Read("missing.txt"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestFS(t *testing.T) {
	archive, err := Open(writeTestPK3(t, testFiles()))
	if err != nil {
		t.Fatalf("failed to open pk3: %v", err)
	}
	defer archive.Close()

	fsys := archive.FS()

	matches, err := fs.Glob(fsys, "scripts/*.shader")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 shader scripts, got %v", matches)
	}

	data, err := fs.ReadFile(fsys, matches[1])
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", matches[1], err)
	}
	if string(data) != "textures/sfx/flame1\n{\n}\n" {
		t.Errorf("unexpected content %q", data)
	}

	if _, err := fsys.Open("textures/nothing.tga"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if _, err := fsys.Open("../escape"); !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("expected fs.ErrInvalid, got %v", err)
	}
}

func TestFS_Stat(t *testing.T) {
	archive, err := Open(writeTestPK3(t, testFiles()))
	if err != nil {
		t.Fatalf("failed to open pk3: %v", err)
	}
	defer archive.Close()

	info, err := fs.Stat(archive.FS(), "Textures/Base_Wall/Concrete.tga")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.IsDir() || info.Size() != 3 {
		t.Errorf("Stat = %v dir, %d bytes", info.IsDir(), info.Size())
	}
	if _, err := fs.Stat(archive.FS(), "textures/empty_dir"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("directories are not listed, got %v", err)
	}
}
