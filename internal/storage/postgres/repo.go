// Package postgres implements a read-only Postgres repository using a pgx v5
// connection pool.
package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"insight/internal/storage"
	"insight/pkg/records"
)

// DefaultPort is used when an endpoint does not set one.
const DefaultPort = 5432

// Config holds Postgres repository configuration.
type Config struct {
	DSN string // connection string for pgxpool
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	close := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, close, nil
}

// Query runs sql and materializes all rows. NUMERIC values are converted to
// float64 so the schema layer sees plain numbers.
func (r *Repository) Query(ctx context.Context, sql string) (*storage.ResultSet, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	rs := &storage.ResultSet{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		rs.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(rs.Rows)+1, err)
		}
		rec := make(records.Record, len(vals))
		for i, v := range vals {
			cv, err := toValue(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", len(rs.Rows)+1, rs.Columns[i], err)
			}
			rec[rs.Columns[i]] = cv
		}
		rs.Rows = append(rs.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return rs, nil
}

// QuoteIdent implements storage.Repository.
func (r *Repository) QuoteIdent(name string) string { return pgIdent(name) }

// QuoteTable implements storage.Repository.
func (r *Repository) QuoteTable(name string) string { return pgFQN(name) }

// toValue flattens pgx decoded values that the schema layer would not
// recognize.
func toValue(v any) (any, error) {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil, nil
		}
		f, err := t.Float64Value()
		if err != nil {
			return nil, err
		}
		if !f.Valid {
			return nil, nil
		}
		return f.Float64, nil
	case []byte:
		return string(t), nil
	case [16]byte:
		return uuid.UUID(t).String(), nil
	}
	return v, nil
}

func pgIdent(id string) string { return storage.QuoteDouble(id) }

// pgFQN quotes a possibly schema-qualified name like "public.hr_events" to
// "public"."hr_events". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string { return storage.QuoteQualified(name, pgIdent) }

// BuildDSN renders an endpoint as a postgres:// URL.
func BuildDSN(e storage.Endpoint) (string, error) {
	if strings.TrimSpace(e.Host) == "" {
		return "", fmt.Errorf("postgres: host is required")
	}
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(port)),
		Path:   "/" + e.Database,
	}
	if e.Username != "" {
		if e.Password != "" {
			u.User = url.UserPassword(e.Username, e.Password)
		} else {
			u.User = url.User(e.Username)
		}
	}
	if len(e.Params) > 0 {
		q := url.Values{}
		for k, v := range e.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
