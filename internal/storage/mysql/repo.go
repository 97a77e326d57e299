// Package mysql implements a read-only MySQL repository over
// github.com/go-sql-driver/mysql.
package mysql

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"insight/internal/storage"
)

// DefaultPort is used when an endpoint does not set one.
const DefaultPort = 3306

// Config holds MySQL repository configuration.
type Config struct {
	DSN string
}

// Repository is a MySQL-backed storage.Repository.
type Repository struct {
	*storage.SQLRepository
}

// NewRepository validates the DSN, opens a pool, and pings it.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := gomysql.ParseDSN(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	db, err := sqlx.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{SQLRepository: storage.NewSQLRepository(db, myIdent)}, close, nil
}

func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// BuildDSN renders an endpoint with mysql.Config.FormatDSN. parseTime is on
// so DATE and DATETIME columns arrive as time.Time.
func BuildDSN(e storage.Endpoint) (string, error) {
	if strings.TrimSpace(e.Host) == "" {
		return "", fmt.Errorf("mysql: host is required")
	}
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	c := gomysql.NewConfig()
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(e.Host, strconv.Itoa(port))
	c.DBName = e.Database
	c.User = e.Username
	c.Passwd = e.Password
	c.ParseTime = true
	if len(e.Params) > 0 {
		c.Params = make(map[string]string, len(e.Params))
		for k, v := range e.Params {
			c.Params[k] = v
		}
	}
	return c.FormatDSN(), nil
}
