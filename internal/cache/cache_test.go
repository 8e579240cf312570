package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/artemshloyda/photobatch/internal/config"
)

func TestKey(t *testing.T) {
	a := Key([]byte("image"), "params-1")
	if len(a) != 32 {
		t.Errorf("len(Key) = %d, want 32", len(a))
	}
	if a != Key([]byte("image"), "params-1") {
		t.Error("Key is not deterministic")
	}
	if a == Key([]byte("image"), "params-2") {
		t.Error("Key should depend on params")
	}
	if a == Key([]byte("other"), "params-1") {
		t.Error("Key should depend on content")
	}
}

func TestCache_StoreLookup(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "cache"), true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	src := []byte("source bytes")
	if _, ok := c.Lookup(src, "h"); ok {
		t.Fatal("Lookup() on empty cache returned ok")
	}

	e := Entry{Data: []byte("webp data"), Format: config.FormatWebP, Width: 10, Height: 5, OriginalWidth: 20, OriginalHeight: 10}
	if err := c.Store(src, "h", e); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, ok := c.Lookup(src, "h")
	if !ok {
		t.Fatal("Lookup() after Store returned false")
	}
	if !bytes.Equal(got.Data, e.Data) || got.Format != e.Format || got.Width != 10 || got.OriginalHeight != 10 {
		t.Errorf("Lookup() = %+v, want %+v", got, e)
	}

	size, err := c.Size()
	if err != nil || size == 0 {
		t.Errorf("Size() = %d, %v; want > 0", size, err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok := c.Lookup(src, "h"); ok {
		t.Error("Lookup() after Clear returned ok")
	}
	if size, err := c.Size(); err != nil || size != 0 {
		t.Errorf("Size() after Clear = %d, %v; want 0, nil", size, err)
	}
	if err := c.Store(src, "h", e); err != nil {
		t.Errorf("Store() after Clear error = %v", err)
	}
}

func TestCache_Disabled(t *testing.T) {
	c, err := New("", false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.IsEnabled() {
		t.Error("IsEnabled() = true, want false")
	}
	if err := c.Store([]byte("x"), "h", Entry{Data: []byte("y")}); err != nil {
		t.Errorf("Store() on disabled cache error = %v", err)
	}
	if _, ok := c.Lookup([]byte("x"), "h"); ok {
		t.Error("Lookup() on disabled cache returned ok")
	}
}
