// Package output serializes a pipeline result as the JSON report consumed
// downstream, optionally compressed.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"insight/internal/insight"
	"insight/internal/pipeline"
)

// Report is the serialized form of a run. Fingerprint hashes the insight
// list only, so reports of identical inputs share it regardless of run id.
type Report struct {
	*pipeline.Result
	Fingerprint string `json:"fingerprint"`
}

// NewReport wraps res and computes its fingerprint.
func NewReport(res *pipeline.Result) (*Report, error) {
	fp, err := Fingerprint(res.Insights)
	if err != nil {
		return nil, err
	}
	return &Report{Result: res, Fingerprint: fp}, nil
}

// Fingerprint is the hex xxh3-128 of the compact JSON encoding of ins.
func Fingerprint(ins []insight.Insight) (string, error) {
	b, err := json.Marshal(ins)
	if err != nil {
		return "", fmt.Errorf("output: encode insights: %w", err)
	}
	h := xxh3.Hash128(b)
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo), nil
}

// Encode writes rep as indented JSON.
func Encode(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("output: encode report: %w", err)
	}
	return nil
}

// Write renders res to path, or to stdout when path is "" or "-". A .gz or
// .zst suffix compresses the file. The file is written in full to a
// temporary sibling and renamed, so a failed run never leaves a partial
// report.
func Write(path string, res *pipeline.Result) error {
	rep, err := NewReport(res)
	if err != nil {
		return err
	}
	if path == "" || path == "-" {
		return Encode(os.Stdout, rep)
	}

	var buf bytes.Buffer
	if err := compress(&buf, path, rep); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".insight-report-*")
	if err != nil {
		return fmt.Errorf("output: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("output: rename to %s: %w", path, err)
	}
	return nil
}

func compress(w io.Writer, path string, rep *Report) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zw := gzip.NewWriter(w)
		if err := Encode(zw, rep); err != nil {
			return err
		}
		return zw.Close()
	case ".zst":
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("output: zstd: %w", err)
		}
		if err := Encode(zw, rep); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	}
	return Encode(w, rep)
}

// Read decodes a report written by Write, detecting compression from the
// file suffix.
func Read(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("output: gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("output: zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	rep := &Report{Result: &pipeline.Result{}}
	if err := json.NewDecoder(r).Decode(rep); err != nil {
		return nil, fmt.Errorf("output: decode %s: %w", path, err)
	}
	return rep, nil
}
