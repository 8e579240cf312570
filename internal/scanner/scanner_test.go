package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "sub", "b.HEIC"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "._a.jpg"))
	touch(t, filepath.Join(dir, ".hidden", "c.png"))
	touch(t, filepath.Join(dir, "out", "d.png"))

	explicit := filepath.Join(t.TempDir(), "explicit.txt")
	touch(t, explicit)

	s := New(nil)
	s.Skip(filepath.Join(dir, "out"))

	got, err := s.Collect(context.Background(), []string{dir, explicit})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	sort.Strings(got)

	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "sub", "b.HEIC"),
		explicit,
	}
	sort.Strings(want)

	if len(got) != len(want) {
		t.Fatalf("Collect() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Collect()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCollect_Missing(t *testing.T) {
	s := New(nil)
	if _, err := s.Collect(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("Collect(missing) should fail")
	}
}

func TestIsCandidate(t *testing.T) {
	s := New(nil)
	tests := []struct {
		name string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.TIFF", true},
		{"dir/icon.svg", true},
		{".photo.jpg", false},
		{"._photo.jpg", false},
		{"photo.txt", false},
	}

	for _, tt := range tests {
		if got := s.IsCandidate(tt.name); got != tt.want {
			t.Errorf("IsCandidate(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
