// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local opens one file from the local disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open returns the file for reading. A context that is already done fails
// without touching the filesystem. Errors wrap the *PathError so
// errors.Is(err, os.ErrNotExist) holds for missing files.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	if st, err := f.Stat(); err == nil && st.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: is a directory", l.path)
	}
	adviseSequential(f)
	return f, nil
}

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

func (l *Local) String() string { return l.path }
