package vipsfinder

import (
	"path/filepath"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"vips-8.14.2\n", "8.14.2"},
		{"vips 8.15.0", "8.15.0"},
		{"8.13.1", "8.13.1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseVersion(tt.in); got != tt.want {
				t.Errorf("parseVersion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSavers(t *testing.T) {
	output := `VipsOperation (operation), operations
  VipsForeignLoadPng (pngload), load png from file
  VipsForeignSaveWebpFile (webpsave), save image to webp file
  VipsForeignSaveHeifFile (heifsave), save image in HEIF format
  VipsForeignSaveJpegFile (jpegsave), save image to jpeg file
`
	savers := parseSavers(output)

	for _, name := range []string{"webpsave", "heifsave", "jpegsave"} {
		if !savers[name] {
			t.Errorf("saver %q not found", name)
		}
	}
	if savers["pngload"] {
		t.Error("loaders must not be reported as savers")
	}
}

func TestVipsInfo_HasSaver(t *testing.T) {
	var nilInfo *VipsInfo
	if nilInfo.HasSaver("webpsave") {
		t.Error("nil VipsInfo should support nothing")
	}

	info := &VipsInfo{savers: map[string]bool{"webpsave": true}}
	if !info.HasSaver("webpsave") {
		t.Error("HasSaver(webpsave) = false, want true")
	}
	if info.HasSaver("heifsave") {
		t.Error("HasSaver(heifsave) = true, want false")
	}

	unknown := &VipsInfo{}
	if !unknown.HasSaver("heifsave") {
		t.Error("unknown saver list should assume heifsave")
	}
}

func TestFinder_NotFound(t *testing.T) {
	t.Setenv(EnvVar, "")
	t.Setenv("PATH", t.TempDir())

	f := NewFinder(filepath.Join(t.TempDir(), "missing-vips"))
	if _, err := f.Find(); err == nil {
		t.Error("Find() should fail when vips is absent")
	}
}
