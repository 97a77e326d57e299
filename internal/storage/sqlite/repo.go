// Package sqlite implements a SQLite-backed storage.Repository using the
// pure-Go modernc.org/sqlite driver through sqlx.
package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"insight/internal/storage"
)

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:insight.db?mode=ro"
	//   "insight.db"
	DSN string
}

// Repository is a SQLite-backed storage.Repository.
type Repository struct {
	*storage.SQLRepository
}

// NewRepository opens a SQLite database and returns a Repository plus a Close
// function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sqlx.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// Apply a basic ping with context to fail fast on invalid DSNs.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{SQLRepository: storage.NewSQLRepository(db, storage.QuoteDouble)}, closeFn, nil
}

// BuildDSN maps an endpoint to a SQLite DSN: Database is the file path and
// Params become query parameters. Host, port and credentials do not apply.
func BuildDSN(e storage.Endpoint) (string, error) {
	if strings.TrimSpace(e.Database) == "" {
		return "", fmt.Errorf("sqlite: database (file path) is required")
	}
	if len(e.Params) == 0 {
		return e.Database, nil
	}
	q := url.Values{}
	for k, v := range e.Params {
		q.Set(k, v)
	}
	return "file:" + e.Database + "?" + q.Encode(), nil
}
