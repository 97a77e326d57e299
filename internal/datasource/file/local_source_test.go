package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestLocalOpen covers success, missing file, directories, and a pre-canceled
// context.
func TestLocalOpen(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "ads.csv")
	if err := os.WriteFile(data, []byte("date,spend\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name     string
		path     string
		ctx      context.Context
		wantIs   error
		contains string
		content  string
	}{
		{name: "reads content", path: data, ctx: context.Background(), content: "date,spend\n"},
		{name: "missing", path: filepath.Join(dir, "nope.csv"), ctx: context.Background(), wantIs: os.ErrNotExist, contains: "nope.csv"},
		{name: "directory", path: dir, ctx: context.Background(), contains: "is a directory"},
		{name: "canceled", path: data, ctx: canceled, wantIs: context.Canceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rc, err := NewLocal(tc.path).Open(tc.ctx)
			if tc.content != "" {
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				defer rc.Close()
				b, _ := io.ReadAll(rc)
				if string(b) != tc.content {
					t.Fatalf("content = %q", b)
				}
				return
			}
			if err == nil {
				rc.Close()
				t.Fatalf("expected error")
			}
			if tc.wantIs != nil && !errors.Is(err, tc.wantIs) {
				t.Fatalf("err = %v, want errors.Is %v", err, tc.wantIs)
			}
			if tc.contains != "" && !strings.Contains(err.Error(), tc.contains) {
				t.Fatalf("err = %v, want substring %q", err, tc.contains)
			}
		})
	}
}
