package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.JPG", true},
		{"scan.webp", true},
		{"anim.gif", true},
		{"notes.txt", false},
		{"raw.tiff", false},
		{"noext", false},
	}

	for _, tt := range tests {
		if got := IsImageFile(tt.name); got != tt.want {
			t.Errorf("IsImageFile(%q): expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := EnsureDir(sub); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	for _, name := range []string{"b.png", "a.jpg", "readme.md", filepath.Join("nested", "c.webp")} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(sub, "c.webp"),
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Expected %v, got %v", want, files)
	}
	if !DirExists(sub) || DirExists(filepath.Join(dir, "a.jpg")) {
		t.Error("DirExists reported wrong result")
	}
}

func TestOutputDirs(t *testing.T) {
	root := filepath.Join("in", "photos")
	inputs := []string{
		filepath.Join(root, "a", "x.jpg"),
		filepath.Join(root, "b", "x.jpg"),
		filepath.Join(root, "x.jpg"),
		filepath.Join(root, "x.png"),
		filepath.Join(root, "kitchen:1.png"),
		filepath.Join(root, "..png"),
	}
	want := []string{
		filepath.Join("out", "a", "x"),
		filepath.Join("out", "b", "x"),
		filepath.Join("out", "x"),
		filepath.Join("out", "x_png"),
		filepath.Join("out", "kitchen_1"),
		filepath.Join("out", "image"),
	}

	got := OutputDirs("out", root, inputs)
	if len(got) != len(want) {
		t.Fatalf("Expected %d dirs, got %d", len(want), len(got))
	}
	seen := map[string]bool{}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Input %s: expected %q, got %q", inputs[i], want[i], got[i])
		}
		if seen[got[i]] {
			t.Errorf("Duplicate output dir %q", got[i])
		}
		seen[got[i]] = true
	}
}

func TestOutputDirsCounterOnRepeatedCollision(t *testing.T) {
	got := OutputDirs("out", "in", []string{
		filepath.Join("in", "x.jpg"),
		filepath.Join("in", "x_jpg.png"),
		filepath.Join("in", "x.JPG"),
	})
	want := []string{
		filepath.Join("out", "x"),
		filepath.Join("out", "x_jpg"),
		filepath.Join("out", "x_2"),
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %q, got %q", want[i], got[i])
		}
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatFileSize(tt.size); got != tt.want {
			t.Errorf("FormatFileSize(%d): expected %q, got %q", tt.size, tt.want, got)
		}
	}
}
