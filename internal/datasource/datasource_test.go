package datasource

import (
	"path/filepath"
	"testing"

	"insight/internal/datasource/file"
	"insight/internal/datasource/httpds"
)

// TestFor verifies scheme dispatch and base-directory resolution.
func TestFor(t *testing.T) {
	if _, ok := For("HTTPS://example.com/a.csv", "/cfg", nil).(*httpds.Source); !ok {
		t.Fatalf("https location should use httpds")
	}
	l, ok := For("data/a.csv", "/cfg", nil).(*file.Local)
	if !ok {
		t.Fatalf("relative path should use file.Local")
	}
	if want := filepath.Join("/cfg", "data/a.csv"); l.Path() != want {
		t.Fatalf("Path = %q, want %q", l.Path(), want)
	}
	abs := filepath.Join(t.TempDir(), "a.csv")
	if got := For(abs, "/cfg", nil).(*file.Local).Path(); got != abs {
		t.Fatalf("absolute path changed: %q", got)
	}
	if Resolve("a.csv", "") != "a.csv" {
		t.Fatalf("empty base should leave path alone")
	}
}
