// Package storage is the backend-agnostic face of the SQL sources. Concrete
// backends (postgres, mysql, mssql, sqlite) register a factory and a DSN
// builder in init; callers open a Repository by kind without importing the
// backend package. Import insight/internal/storage/all to enable them all.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"insight/pkg/records"
)

// ResultSet is a fully materialized query result. Columns keeps the order the
// database reported; each row maps every column to a Go value (nil for SQL
// NULL, string for text and raw bytes).
type ResultSet struct {
	Columns []string
	Rows    []records.Record
}

// Repository runs read-only queries against one database connection.
type Repository interface {
	// Query executes sql and returns every row.
	Query(ctx context.Context, sql string) (*ResultSet, error)
	// QuoteIdent quotes a single column identifier.
	QuoteIdent(name string) string
	// QuoteTable quotes a possibly schema-qualified table name.
	QuoteTable(name string) string
	Close()
}

// Config selects a backend and the connection string handed to it.
type Config struct {
	Kind string
	DSN  string
}

// Endpoint is a structured connection description that a backend's DSN
// builder turns into its native connection string.
type Endpoint struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Params   map[string]string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

// DSNBuilder renders an Endpoint as a backend connection string.
type DSNBuilder func(e Endpoint) (string, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
	builders  = map[string]DSNBuilder{}
)

var aliases = map[string]string{
	"postgresql": "postgres",
	"pgx":        "postgres",
	"sqlserver":  "mssql",
	"sqlite3":    "sqlite",
}

// Canonical maps driver aliases to the registered kind.
func Canonical(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	if a, ok := aliases[k]; ok {
		return a
	}
	return k
}

// Register installs the factory for kind. It panics on duplicates, like
// database/sql.Register.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("storage: Register called twice for " + kind)
	}
	factories[kind] = f
}

// RegisterDSN installs the DSN builder for kind.
func RegisterDSN(kind string, b DSNBuilder) {
	mu.Lock()
	defer mu.Unlock()
	builders[kind] = b
}

// New opens a Repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	kind := Canonical(cfg.Kind)
	mu.RLock()
	f, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
	cfg.Kind = kind
	return f(ctx, cfg)
}

// BuildDSN renders e with the builder registered for kind.
func BuildDSN(kind string, e Endpoint) (string, error) {
	k := Canonical(kind)
	mu.RLock()
	b, ok := builders[k]
	mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: no DSN builder for kind %q", kind)
	}
	return b(e)
}

// Kinds lists registered backends, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
