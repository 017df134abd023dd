package catalog

import (
	"context"
	"fmt"
	"strings"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS archives (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    entry_count INTEGER NOT NULL,
    directory_version INTEGER NOT NULL,
    size INTEGER NOT NULL,
    loaded_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS entries (
    archive_id INTEGER NOT NULL REFERENCES archives(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    store_type TEXT NOT NULL,
    "offset" INTEGER NOT NULL,
    stored_size INTEGER NOT NULL,
    original_size INTEGER NOT NULL,
    last_modified TEXT,
    checksum INTEGER NOT NULL,
    PRIMARY KEY (archive_id, path)
)`,
	`CREATE INDEX IF NOT EXISTS entries_path ON entries(path)`,
}

func (c *Catalog) createSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if _, err := c.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Schema returns the CREATE statement of every user table and index.
func (c *Catalog) Schema(ctx context.Context) (string, error) {
	rows, err := c.Query(ctx, `SELECT sql FROM sqlite_master WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%' ORDER BY type DESC, name`)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scanning schema: %w", err)
		}
		stmts = append(stmts, stmt+";")
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(stmts, "\n\n"), nil
}
