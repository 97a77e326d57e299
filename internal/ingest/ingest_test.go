package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"insight/internal/config"
	"insight/internal/schema"
	"insight/internal/storage"
	_ "insight/internal/storage/postgres"
	_ "insight/internal/storage/sqlite"
	"insight/pkg/records"
)

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func fileSource(path string) config.Source {
	return config.Source{
		Name:       "ads",
		Kind:       config.KindFile,
		File:       config.SourceFile{Path: path},
		DateCol:    "date",
		Dimensions: []string{"campaign"},
		Metrics:    []string{"spend"},
	}
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

/*
TestLoad_FileTables verifies CSV (semicolon, auto-detected), gzip-compressed
CSV and NDJSON files load relative to BaseDir and unify to typed values.
*/
func TestLoad_FileTables(t *testing.T) {
	dir := t.TempDir()
	csvBody := "date;campaign;spend;ignored\n2024-01-01;A;10.5;x\n2024-01-02;B;;y\n"
	writeFile(t, dir, "ads.csv", []byte(csvBody))

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write([]byte(csvBody))
	_ = zw.Close()
	writeFile(t, dir, "ads.csv.gz", gz.Bytes())

	writeFile(t, dir, "ads.ndjson", []byte(
		"{\"date\":\"2024-01-01\",\"campaign\":\"A\",\"spend\":10.5}\n{\"date\":\"2024-01-02\",\"campaign\":\"B\",\"spend\":null}\n"))

	for _, name := range []string{"ads.csv", "ads.csv.gz", "ads.ndjson"} {
		t.Run(name, func(t *testing.T) {
			tbl, err := Load(context.Background(), fileSource(name), Options{BaseDir: dir})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if want := []string{"date", "campaign", "spend"}; !reflect.DeepEqual(tbl.Columns, want) {
				t.Fatalf("Columns = %v, want %v", tbl.Columns, want)
			}
			if tbl.Len() != 2 {
				t.Fatalf("Len = %d", tbl.Len())
			}
			r0, r1 := tbl.Rows[0], tbl.Rows[1]
			if r0["date"] != day("2024-01-01") || r0["campaign"] != "A" || r0["spend"] != 10.5 {
				t.Fatalf("row0 = %#v", r0)
			}
			if r1["spend"] != nil {
				t.Fatalf("empty spend must be nil, got %#v", r1["spend"])
			}
		})
	}
}

/*
TestLoad_RemoteFile verifies http(s) locations are fetched and the format is
taken from the URL path, ignoring the query string.
*/
func TestLoad_RemoteFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("date,campaign,spend\n2024-01-01,A,3\n"))
	}))
	defer srv.Close()

	tbl, err := Load(context.Background(), fileSource(srv.URL+"/export/ads.csv?token=abc"), Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.Len() != 1 || tbl.Rows[0]["spend"] != 3.0 {
		t.Fatalf("rows = %#v", tbl.Rows)
	}
}

/*
TestLoad_Errors verifies each failure surfaces as the documented typed error.
*/
func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ads.csv", []byte("date,campaign\n2024-01-01,A\n"))
	writeFile(t, dir, "ads.xlsx", []byte("binary"))

	unknownKind := fileSource("ads.csv")
	unknownKind.Kind = "ftp"

	tests := []struct {
		name      string
		src       config.Source
		wantLoad  bool
		wantShape bool
	}{
		{name: "missing_file", src: fileSource("nope.csv"), wantLoad: true},
		{name: "unknown_format", src: fileSource("ads.xlsx"), wantLoad: true},
		{name: "unknown_kind", src: unknownKind, wantLoad: true},
		{name: "missing_declared_column", src: fileSource("ads.csv"), wantShape: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(context.Background(), tc.src, Options{BaseDir: dir})
			if err == nil {
				t.Fatal("expected error")
			}
			var le *SourceLoadError
			if got := errors.As(err, &le); got != tc.wantLoad {
				t.Fatalf("SourceLoadError = %v, err = %v", got, err)
			}
			var se *schema.SchemaError
			if got := errors.As(err, &se); got != tc.wantShape {
				t.Fatalf("SchemaError = %v, err = %v", got, err)
			}
		})
	}
}

// seedSQLite creates a small campaign table in a fresh database file.
func seedSQLite(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for _, stmt := range []string{
		`CREATE TABLE "ad stats" (date TEXT, campaign TEXT, spend REAL, note TEXT)`,
		`INSERT INTO "ad stats" VALUES ('2024-01-01', 'A', 10, 'x'), ('2024-01-02', 'B', NULL, 'y')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
}

/*
TestLoad_SQLSources verifies query and table sources against a real SQLite
file, including placeholder resolution and quoted table names.
*/
func TestLoad_SQLSources(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ads.db")
	seedSQLite(t, dbPath)

	lookup := func(k string) (string, bool) {
		if k == "ADS_DB" {
			return dbPath, true
		}
		return "", false
	}

	query := fileSource("")
	query.Kind = config.KindQuery
	query.Query = config.SourceQuery{Driver: "sqlite3", DSN: "${ADS_DB}", SQL: `SELECT date, campaign, spend FROM "ad stats" ORDER BY date`}

	table := fileSource("")
	table.Kind = config.KindTable
	table.Table = config.SourceTable{Name: "ad stats", Connection: config.Connection{Driver: "sqlite", Database: "ads.db"}}

	for name, src := range map[string]config.Source{"query": query, "table": table} {
		t.Run(name, func(t *testing.T) {
			tbl, err := Load(context.Background(), src, Options{BaseDir: dir, Lookup: lookup})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if tbl.Len() != 2 {
				t.Fatalf("Len = %d", tbl.Len())
			}
			if r := tbl.Rows[0]; r["date"] != day("2024-01-01") || r["campaign"] != "A" || r["spend"] != 10.0 {
				t.Fatalf("row0 = %#v", r)
			}
			if tbl.Rows[1]["spend"] != nil {
				t.Fatalf("NULL spend must stay nil")
			}
		})
	}

	t.Run("unresolved_placeholder", func(t *testing.T) {
		src := query
		src.Query.DSN = "${MISSING_DSN}"
		_, err := Load(context.Background(), src, Options{BaseDir: dir, Lookup: lookup})
		var le *SourceLoadError
		if !errors.As(err, &le) || !strings.Contains(err.Error(), "MISSING_DSN") {
			t.Fatalf("err = %v", err)
		}
	})
}

/*
TestLoad_RepositoryFailure verifies a connection error from the backend is
wrapped as a SourceLoadError, using the openRepository hook.
*/
func TestLoad_RepositoryFailure(t *testing.T) {
	orig := openRepository
	defer func() { openRepository = orig }()
	boom := errors.New("connection refused")
	openRepository = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return nil, boom
	}

	src := fileSource("")
	src.Kind = config.KindQuery
	src.Query = config.SourceQuery{Driver: "postgres", DSN: "postgres://h/db", SQL: "SELECT 1"}
	_, err := Load(context.Background(), src, Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

type bracketQuoter struct{}

func (bracketQuoter) QuoteIdent(n string) string { return "[" + n + "]" }
func (bracketQuoter) QuoteTable(n string) string { return "[" + n + "]" }

/*
TestSelectSQL verifies table sources read every column of the quoted table.
*/
func TestSelectSQL(t *testing.T) {
	if got := SelectSQL(bracketQuoter{}, "dbo.ad stats"); got != "SELECT * FROM [dbo.ad stats]" {
		t.Fatalf("got %q", got)
	}
}

// recordingRepo answers every query with a fixed result set and keeps the
// statements it was given.
type recordingRepo struct {
	bracketQuoter
	rs      *storage.ResultSet
	queries []string
}

func (r *recordingRepo) Query(ctx context.Context, sql string) (*storage.ResultSet, error) {
	r.queries = append(r.queries, sql)
	return r.rs, nil
}

func (r *recordingRepo) Close() {}

/*
TestLoad_TableMissingColumn verifies a declared column absent from a
connection table is reported by the unifier as a *schema.SchemaError on a
server backend, and that the table is read with a select-all statement.
*/
func TestLoad_TableMissingColumn(t *testing.T) {
	orig := openRepository
	defer func() { openRepository = orig }()

	repo := &recordingRepo{rs: &storage.ResultSet{
		Columns: []string{"date", "campaign", "spend", "note"},
		Rows: []records.Record{
			{"date": "2024-01-01", "campaign": "A", "spend": 10.0, "note": "x"},
		},
	}}
	var gotCfg storage.Config
	openRepository = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		gotCfg = cfg
		return repo, nil
	}

	src := fileSource("")
	src.Kind = config.KindTable
	src.Metrics = []string{"spend", "clicks"}
	src.Table = config.SourceTable{Name: "ad_stats", Connection: config.Connection{Driver: "postgres", Host: "db", Database: "ads"}}

	_, err := Load(context.Background(), src, Options{})
	var se *schema.SchemaError
	if !errors.As(err, &se) || se.Column != "clicks" {
		t.Fatalf("err = %v, want SchemaError for clicks", err)
	}
	var le *SourceLoadError
	if errors.As(err, &le) {
		t.Fatalf("missing column must not be a load error: %v", err)
	}
	if gotCfg.Kind != "postgres" {
		t.Fatalf("Kind = %q", gotCfg.Kind)
	}
	if want := []string{"SELECT * FROM [ad_stats]"}; !reflect.DeepEqual(repo.queries, want) {
		t.Fatalf("queries = %q, want %q", repo.queries, want)
	}

	src.Metrics = []string{"spend"}
	tbl, err := Load(context.Background(), src, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(tbl.Columns, []string{"date", "campaign", "spend"}) {
		t.Fatalf("Columns = %v, undeclared columns must be dropped", tbl.Columns)
	}
}
