// Package parser defines the contract shared by the file-table parsers.
package parser

import (
	"io"

	"insight/pkg/records"
)

// Result is a parsed file table. Columns preserves the source order (header
// order for CSV, sorted first-seen keys for JSON).
type Result struct {
	Columns []string
	Rows    []records.Record
	// Skipped counts malformed rows that were dropped with a log line.
	Skipped int
}

// Parser turns a byte stream into rows.
type Parser interface {
	Parse(r io.Reader) (*Result, error)
}
