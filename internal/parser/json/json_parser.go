// Package json parses JSON file tables: a top-level array of objects, a
// stream of newline-delimited objects, or a mix of both.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"insight/internal/config"
	"insight/internal/parser"
	"insight/pkg/records"
)

// Options configures JSON decoding.
type Options struct {
	// AllowArrays accepts top-level arrays of objects in addition to NDJSON.
	AllowArrays bool
}

// FromConfigOptions maps allow_arrays (default true).
func FromConfigOptions(o config.Options) Options {
	return Options{AllowArrays: o.Bool("allow_arrays", true)}
}

// Parser decodes objects into records. Numbers are kept as json.Number so
// the schema unifier sees their exact text.
type Parser struct{ opt Options }

var _ parser.Parser = (*Parser)(nil)

// NewParser returns a Parser configured with opt.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// Parse decodes every top-level value from r. Columns are the union of keys
// in first-seen order; keys new to a given object are added sorted.
func (p *Parser) Parse(r io.Reader) (*parser.Result, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	res := &parser.Result{}
	seen := map[string]bool{}
	add := func(obj map[string]any) {
		var fresh []string
		for k := range obj {
			if !seen[k] {
				seen[k] = true
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		res.Columns = append(res.Columns, fresh...)
		res.Rows = append(res.Rows, records.Record(obj))
	}

	for n := 0; ; n++ {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("json: value %d: %w", n, err)
		}
		switch t := v.(type) {
		case map[string]any:
			add(t)
		case []any:
			if !p.opt.AllowArrays {
				return nil, fmt.Errorf("json: value %d: top-level arrays are disabled (allow_arrays=false)", n)
			}
			for i, e := range t {
				obj, ok := e.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("json: value %d element %d: expected object, got %T", n, i, e)
				}
				add(obj)
			}
		case nil:
			// tolerate stray nulls between objects
		default:
			return nil, fmt.Errorf("json: value %d: expected object or array, got %T", n, v)
		}
	}
	return res, nil
}
