// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories and DSN builders with the storage package. After importing
// it the following kinds are available:
//
//   - "postgres" (aliases "postgresql", "pgx")
//   - "mysql"
//   - "mssql"    (alias "sqlserver")
//   - "sqlite"   (alias "sqlite3")
//
// A binary that needs only a subset can import the backend packages directly
// instead.
package all

import (
	_ "insight/internal/storage/mssql"
	_ "insight/internal/storage/mysql"
	_ "insight/internal/storage/postgres"
	_ "insight/internal/storage/sqlite"
)
