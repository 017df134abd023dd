// Package catalog records archive directories in a SQLite database so
// that many archives can be searched with plain SQL.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var errClosed = errors.New("catalog is closed")

// Catalog is a connection to a catalog database.
type Catalog struct {
	db        *sql.DB
	closed    bool
	path      string
	batchSize int
}

// Options configures how the catalog database is opened.
type Options struct {
	// Path to the SQLite database file
	Path string

	// WALMode enables write-ahead logging
	WALMode bool

	BusyTimeout time.Duration

	// BatchSize is the number of entry rows inserted per transaction
	BatchSize int
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions(path string) *Options {
	return &Options{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 30 * time.Second,
		BatchSize:   1000,
	}
}

// Open opens or creates the catalog at opts.Path and ensures its schema
// exists.
func Open(ctx context.Context, opts *Options) (*Catalog, error) {
	if opts == nil {
		return nil, fmt.Errorf("catalog options cannot be nil")
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("catalog path cannot be empty")
	}

	if err := ensureDirectory(opts.Path); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", connectionString(opts))
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", opts.Path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("testing catalog connection: %w", err)
	}

	c := &Catalog{db: db, path: opts.Path, batchSize: opts.BatchSize}
	if c.batchSize <= 0 {
		c.batchSize = 1000
	}

	if err := c.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Path returns the database file path.
func (c *Catalog) Path() string { return c.path }

// Close closes the database connection.
func (c *Catalog) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.db.Close()
	if err != nil {
		return fmt.Errorf("closing catalog: %w", err)
	}
	return nil
}

// Query executes a SQL query that returns rows.
func (c *Catalog) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.closed {
		return nil, errClosed
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// QueryRow executes a query expected to return at most one row. On a
// closed catalog the returned row's Scan reports the error.
func (c *Catalog) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Tables lists the user tables in the catalog.
func (c *Catalog) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.Query(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func connectionString(opts *Options) string {
	var pragmas []string

	if opts.WALMode {
		pragmas = append(pragmas, "_journal_mode=WAL")
	}
	pragmas = append(pragmas, "_foreign_keys=on")
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_busy_timeout=%d", opts.BusyTimeout.Milliseconds()))
	}
	pragmas = append(pragmas, "_synchronous=NORMAL")

	return "file:" + opts.Path + "?" + strings.Join(pragmas, "&")
}

func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
