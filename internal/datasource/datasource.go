// Package datasource abstracts where file-table bytes come from.
package datasource

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"insight/internal/datasource/file"
	"insight/internal/datasource/httpds"
)

// Source yields a stream of bytes. Callers must close the reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// For returns the Source for location: an HTTP source for http(s) URLs,
// otherwise a local file, with relative paths resolved against baseDir.
// client may be nil.
func For(location, baseDir string, client *httpds.Client) Source {
	if IsRemote(location) {
		return httpds.NewSource(client, location)
	}
	return file.NewLocal(Resolve(location, baseDir))
}

// Resolve joins a relative local path to baseDir.
func Resolve(path, baseDir string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
