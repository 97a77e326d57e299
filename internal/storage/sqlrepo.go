package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"insight/pkg/records"
)

// SQLRepository implements Repository over database/sql through sqlx. The
// mysql, mssql and sqlite backends share it and differ only in driver and
// identifier quoting.
type SQLRepository struct {
	db    *sqlx.DB
	quote func(string) string
}

// NewSQLRepository wraps an open handle. quote quotes one identifier.
func NewSQLRepository(db *sqlx.DB, quote func(string) string) *SQLRepository {
	return &SQLRepository{db: db, quote: quote}
}

// DB exposes the underlying handle, mainly for tests that seed data.
func (r *SQLRepository) DB() *sqlx.DB { return r.db }

// Query runs sql and materializes all rows. []byte values are returned as
// strings.
func (r *SQLRepository) Query(ctx context.Context, sql string) (*ResultSet, error) {
	rows, err := r.db.QueryxContext(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(rs.Rows)+1, err)
		}
		rec := make(records.Record, len(m))
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[k] = v
		}
		rs.Rows = append(rs.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return rs, nil
}

// QuoteIdent implements Repository.
func (r *SQLRepository) QuoteIdent(name string) string { return r.quote(name) }

// QuoteTable quotes each dot-separated part of name.
func (r *SQLRepository) QuoteTable(name string) string { return QuoteQualified(name, r.quote) }

// Close closes the handle.
func (r *SQLRepository) Close() { _ = r.db.Close() }

// QuoteQualified applies quote to every dot-separated part of name, so
// "dbo.events" becomes e.g. [dbo].[events].
func QuoteQualified(name string, quote func(string) string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

// QuoteDouble quotes with ANSI double quotes.
func QuoteDouble(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
