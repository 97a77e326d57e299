// Package csv parses delimited text file tables. The delimiter is detected
// from the header line unless configured, and header cells can be normalized
// to snake_case ASCII keys.
package csv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"insight/internal/config"
	"insight/internal/parser"
	"insight/pkg/records"
)

// Options configures the CSV parser behavior. All fields are optional; sensible
// defaults are applied when a field is zero.
type Options struct {
	// NoHeader treats the first row as data and names columns col_0, col_1...
	NoHeader bool

	// Comma specifies the field delimiter. When zero it is detected from the
	// first line among ',', ';' and '\t'.
	Comma rune

	// TrimSpace trims leading/trailing spaces from each field value.
	TrimSpace bool

	// NormalizeHeaders lowercases header cells, folds diacritics to ASCII and
	// replaces spaces with underscores ("Název Kampaně" -> "nazev_kampane").
	NormalizeHeaders bool

	// HeaderMap renames raw header cells before normalization.
	HeaderMap map[string]string

	// MaxSkipLog caps the number of per-row skip messages logged.
	MaxSkipLog int
}

// FromConfigOptions maps a source's options bag to Options:
// comma, has_header (default true), trim_space (default true),
// normalize_headers, header_map.
func FromConfigOptions(o config.Options) Options {
	return Options{
		NoHeader:         !o.Bool("has_header", true),
		Comma:            o.Rune("comma", 0),
		TrimSpace:        o.Bool("trim_space", true),
		NormalizeHeaders: o.Bool("normalize_headers", false),
		HeaderMap:        o.StringMap("header_map"),
	}
}

// Parser parses CSV input according to Options. It is safe to reuse across
// inputs, but Parser itself is not concurrency-safe.
type Parser struct{ opt Options }

var _ parser.Parser = (*Parser)(nil)

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser {
	if opt.MaxSkipLog <= 0 {
		opt.MaxSkipLog = 20
	}
	return &Parser{opt: opt}
}

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\ufeff"

// Parse reads every record from r. Rows whose width differs from the header
// are skipped and counted; a missing header is an error.
func (p *Parser) Parse(r io.Reader) (*parser.Result, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	comma := p.opt.Comma
	if comma == 0 {
		comma = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	res := &parser.Result{}
	var headers []string
	if !p.opt.NoHeader {
		h, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv: empty input, header row expected")
		}
		if err != nil {
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		headers, err = normalizeHeaders(h, p.opt)
		if err != nil {
			return nil, err
		}
		res.Columns = headers
	}

	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.skip(res, line, err.Error())
			continue
		}
		if headers == nil {
			headers = make([]string, len(row))
			for i := range headers {
				headers[i] = fmt.Sprintf("col_%d", i)
			}
			res.Columns = headers
		}
		if len(row) != len(headers) {
			if len(row) == 1 && row[0] == "" {
				continue
			}
			p.skip(res, line, fmt.Sprintf("incorrect number of fields (expected %d, got %d)", len(headers), len(row)))
			continue
		}

		rec := make(records.Record, len(row))
		for i, val := range row {
			if p.opt.TrimSpace {
				val = strings.TrimSpace(val)
			}
			rec[headers[i]] = emptyToNil(val)
		}
		res.Rows = append(res.Rows, rec)
	}
	if res.Skipped > p.opt.MaxSkipLog {
		log.Printf("csv: skipped %d malformed rows in total", res.Skipped)
	}
	return res, nil
}

func (p *Parser) skip(res *parser.Result, line int, why string) {
	if res.Skipped < p.opt.MaxSkipLog {
		log.Printf("csv: skipping row %d: %s", line, why)
	}
	res.Skipped++
}

// sniffDelimiter counts candidate delimiters outside quotes on the first line
// without consuming it. Ties favor ',' then ';'.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(br.Size())
	if i := strings.IndexByte(string(peek), '\n'); i >= 0 {
		peek = peek[:i]
	}
	counts := map[byte]int{}
	inQuote := false
	for _, b := range peek {
		switch {
		case b == '"':
			inQuote = !inQuote
		case !inQuote && (b == ',' || b == ';' || b == '\t'):
			counts[b]++
		}
	}
	best := byte(',')
	for _, c := range []byte{';', '\t'} {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return rune(best)
}

// emptyToNil converts an empty string to nil; all other values are returned as-is.
func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// normalizeHeaders applies HeaderMap and, when enabled, snake_case ASCII
// normalization. It strips a UTF-8 BOM from the first cell and rejects
// duplicate or empty resulting names.
func normalizeHeaders(h []string, opt Options) ([]string, error) {
	res := make([]string, len(h))
	seen := make(map[string]int, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		if m, ok := opt.HeaderMap[c]; ok {
			c = m
		} else if opt.NormalizeHeaders {
			c = Normalize(c)
		}
		if c == "" {
			c = fmt.Sprintf("col_%d", i)
		}
		if j, dup := seen[c]; dup {
			return nil, fmt.Errorf("csv: duplicate column %q at positions %d and %d", c, j, i)
		}
		seen[c] = i
		res[i] = c
	}
	return res, nil
}

// Normalize lowercases s, strips diacritics, and joins words with
// underscores.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.Join(strings.Fields(folded), "_")
}
