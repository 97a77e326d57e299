// Package ingest loads a declared source (a file table, a SQL query, or a
// whole database table) into a unified schema.Table.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"insight/internal/config"
	"insight/internal/datasource"
	"insight/internal/datasource/httpds"
	"insight/internal/parser"
	csvparser "insight/internal/parser/csv"
	jsonparser "insight/internal/parser/json"
	"insight/internal/schema"
	"insight/internal/storage"
)

// SourceLoadError reports a source that could not be read: a missing file, a
// failed connection or query, an unknown format, or an unresolved credential
// placeholder.
type SourceLoadError struct {
	Source string
	Kind   string
	Err    error
}

func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("ingest: source %q (%s): %v", e.Source, e.Kind, e.Err)
}

func (e *SourceLoadError) Unwrap() error { return e.Err }

// Options carries the per-run settings a load needs besides the source
// declaration itself.
type Options struct {
	// BaseDir resolves relative file paths and sqlite database paths.
	BaseDir string
	// DateLayouts are tried before schema.DefaultDateLayouts.
	DateLayouts []string
	// HTTP fetches remote file tables; nil uses a default client.
	HTTP *httpds.Client
	// Lookup resolves ${VAR} placeholders; nil uses the process environment.
	Lookup func(string) (string, bool)
	// Verbose enables per-source log lines.
	Verbose bool
}

// openRepository is a test hook that points to storage.New by default.
var openRepository = storage.New

// Load reads src and unifies it against its declared columns. Read failures
// are *SourceLoadError; declaration mismatches are the schema package's
// typed errors.
func Load(ctx context.Context, src config.Source, opts Options) (*schema.Table, error) {
	var (
		raw *schema.Table
		err error
	)
	switch src.Kind {
	case config.KindFile:
		raw, err = loadFile(ctx, src, opts)
	case config.KindQuery:
		raw, err = loadQuery(ctx, src, opts)
	case config.KindTable:
		raw, err = loadTable(ctx, src, opts)
	default:
		err = fmt.Errorf("unknown source kind %q", src.Kind)
	}
	if err != nil {
		return nil, &SourceLoadError{Source: src.Name, Kind: src.Kind, Err: err}
	}
	if opts.Verbose {
		log.Printf("ingest: loaded source=%s kind=%s location=%s rows=%d columns=%d",
			src.Name, src.Kind, src.Location(), raw.Len(), len(raw.Columns))
	}

	return schema.Unify(src.Name, raw, schema.Declaration{
		DateCol:    src.DateCol,
		Dimensions: src.Dimensions,
		Metrics:    src.Metrics,
		JoinKey:    src.JoinKey,
	}, opts.DateLayouts)
}

// ---- file tables ----

func loadFile(ctx context.Context, src config.Source, opts Options) (*schema.Table, error) {
	loc := strings.TrimSpace(src.File.Path)
	if loc == "" {
		return nil, fmt.Errorf("file.path is empty")
	}
	name := locationPath(loc)
	codec, inner := compression(name)
	format := src.File.Format
	if format == "" {
		format = src.Options.String("format", "")
	}
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(path.Ext(inner)), ".")
	}
	p, err := parserFor(format, src.Options)
	if err != nil {
		return nil, err
	}

	client := opts.HTTP
	if client == nil && datasource.IsRemote(loc) {
		client = httpds.NewClient(httpds.Config{})
	}
	rc, err := datasource.For(loc, opts.BaseDir, client).Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r, closeFn, err := decompress(codec, rc)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	res, err := p.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}
	if res.Skipped > 0 {
		log.Printf("ingest: source=%s skipped %d malformed rows", src.Name, res.Skipped)
	}
	return &schema.Table{Name: src.Name, Columns: res.Columns, Rows: res.Rows}, nil
}

// parserFor selects a parser by format name.
func parserFor(format string, o config.Options) (parser.Parser, error) {
	switch strings.ToLower(format) {
	case "csv", "txt":
		return csvparser.NewParser(csvparser.FromConfigOptions(o)), nil
	case "tsv":
		opt := csvparser.FromConfigOptions(o)
		if opt.Comma == 0 {
			opt.Comma = '\t'
		}
		return csvparser.NewParser(opt), nil
	case "json", "ndjson", "jsonl":
		return jsonparser.NewParser(jsonparser.FromConfigOptions(o)), nil
	}
	return nil, fmt.Errorf("unsupported file format %q (want csv, tsv, txt, json, ndjson)", format)
}

// locationPath strips the query and fragment of a URL so extension
// detection sees only the path.
func locationPath(loc string) string {
	if datasource.IsRemote(loc) {
		if u, err := url.Parse(loc); err == nil {
			return u.Path
		}
	}
	return loc
}

// compression reports the codec implied by a .gz or .zst suffix and the name
// with that suffix removed.
func compression(name string) (codec, inner string) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return "gzip", name[:len(name)-3]
	case strings.HasSuffix(lower, ".zst"):
		return "zstd", name[:len(name)-4]
	}
	return "", name
}

func decompress(codec string, r io.Reader) (io.Reader, func(), error) {
	switch codec {
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	}
	return r, func() {}, nil
}

// ---- SQL sources ----

func loadQuery(ctx context.Context, src config.Source, opts Options) (*schema.Table, error) {
	q := src.Query
	if strings.TrimSpace(q.SQL) == "" {
		return nil, fmt.Errorf("query.sql is empty")
	}
	dsn, err := config.ResolveEnv(q.DSN, opts.Lookup)
	if err != nil {
		return nil, fmt.Errorf("query.dsn: %w", err)
	}
	return runSQL(ctx, src.Name, q.Driver, dsn, q.SQL)
}

func loadTable(ctx context.Context, src config.Source, opts Options) (*schema.Table, error) {
	conn, err := src.Table.Connection.Resolve(opts.Lookup)
	if err != nil {
		return nil, fmt.Errorf("table.connection: %w", err)
	}
	if strings.TrimSpace(src.Table.Name) == "" {
		return nil, fmt.Errorf("table.name is empty")
	}
	kind := storage.Canonical(conn.Driver)
	if kind == "sqlite" {
		conn.Database = datasource.Resolve(conn.Database, opts.BaseDir)
	}
	dsn, err := storage.BuildDSN(kind, storage.Endpoint{
		Host:     conn.Host,
		Port:     conn.Port,
		Database: conn.Database,
		Username: conn.Username,
		Password: conn.Password,
		Params:   conn.Params,
	})
	if err != nil {
		return nil, err
	}

	repo, err := openRepository(ctx, storage.Config{Kind: kind, DSN: dsn})
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	rs, err := repo.Query(ctx, SelectSQL(repo, src.Table.Name))
	if err != nil {
		return nil, err
	}
	return &schema.Table{Name: src.Name, Columns: rs.Columns, Rows: rs.Rows}, nil
}

func runSQL(ctx context.Context, name, driver, dsn, sql string) (*schema.Table, error) {
	repo, err := openRepository(ctx, storage.Config{Kind: driver, DSN: dsn})
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	rs, err := repo.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &schema.Table{Name: name, Columns: rs.Columns, Rows: rs.Rows}, nil
}

// Quoter quotes table names for one SQL dialect.
type Quoter interface {
	QuoteTable(name string) string
}

// SelectSQL builds the read statement for a connection table. Every column is
// selected; Unify keeps the declared ones and reports any that are missing.
func SelectSQL(q Quoter, table string) string {
	return "SELECT * FROM " + q.QuoteTable(table)
}
