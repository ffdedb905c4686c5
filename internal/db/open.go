// Package db opens the persistence backend and carries the embedded
// schema migrations. postgres:// DSNs use pgx; anything else is treated
// as a SQLite path or URI.
package db

import (
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB wraps *sql.DB with the placeholder style of the selected driver.
type DB struct {
	*sql.DB
	driver string
}

// Open opens the backend for the given DSN. Caller must call Close when done.
func Open(dsn string) (*DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	}
	d, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return &DB{DB: d, driver: driver}, nil
}

// Driver returns the selected driver name ("sqlite" or "pgx").
func (d *DB) Driver() string { return d.driver }

// Rebind converts ? placeholders in query to the $n form when the driver
// requires it. Repositories write queries with ? and rebind once.
func (d *DB) Rebind(query string) string {
	if d.driver != "pgx" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// TimeFormat is the fixed-width RFC3339 layout used for timestamp columns.
// Fixed fractional digits keep lexicographic text ordering consistent with
// chronological ordering, which the session queries rely on.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
