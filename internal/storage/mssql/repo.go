// Package mssql implements a read-only Microsoft SQL Server repository using
// go-mssqldb through sqlx.
package mssql

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"insight/internal/storage"
)

// DefaultPort is used when an endpoint does not set one.
const DefaultPort = 1433

// Config holds MSSQL repository configuration.
type Config struct {
	DSN string
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	*storage.SQLRepository
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sqlx.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{SQLRepository: storage.NewSQLRepository(db, msIdent)}, close, nil
}

func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// BuildDSN renders an endpoint as a sqlserver:// URL with the database as a
// query parameter.
func BuildDSN(e storage.Endpoint) (string, error) {
	if strings.TrimSpace(e.Host) == "" {
		return "", fmt.Errorf("mssql: host is required")
	}
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	q := url.Values{}
	if e.Database != "" {
		q.Set("database", e.Database)
	}
	for k, v := range e.Params {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "sqlserver",
		Host:     net.JoinHostPort(e.Host, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u.String(), nil
}
