// Package sqlite is the SQLite-backed implementation of store.Store.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Driver selects which registered database/sql driver backs the store.
// CGODriver uses mattn/go-sqlite3; PureGoDriver uses modernc.org/sqlite for
// environments where cgo is unavailable (e.g. cross-compiled static builds).
type Driver string

const (
	CGODriver    Driver = "sqlite3"
	PureGoDriver Driver = "sqlite"
)

// Open opens (creating if needed) a SQLite database file at path, tunes it
// for the executor's single-writer/many-reader access pattern, and applies
// pending goose migrations.
func Open(path string, driver Driver) (*sql.DB, error) {
	if driver == "" {
		driver = CGODriver
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	var conn *sql.DB
	var err error

	maxRetries := 5
	baseDelay := 100 * time.Millisecond
	for attempt := 0; attempt < maxRetries; attempt++ {
		conn, err = sql.Open(string(driver), path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)

		if err = conn.Ping(); err != nil {
			conn.Close()
			if attempt == maxRetries-1 {
				return nil, fmt.Errorf("pinging database after %d attempts: %w", maxRetries, err)
			}
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
			continue
		}
		break
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	if err := migrate(conn, string(driver)); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return conn, nil
}

func migrate(conn *sql.DB, driver string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(conn, "migrations")
}
