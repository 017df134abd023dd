package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jchantrell/nartool/internal/nar"
)

const insertEntrySQL = `INSERT INTO entries
    (archive_id, path, store_type, "offset", stored_size, original_size, last_modified, checksum)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Record stores the directory of a and returns the archive's row id. An
// archive already recorded under the same path is replaced.
func (c *Catalog) Record(ctx context.Context, path string, a *nar.Archive) (int64, error) {
	if c.closed {
		return 0, errClosed
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	id, err := c.replaceArchive(ctx, path, a)
	if err != nil {
		return 0, err
	}

	entries := a.Entries()
	for i := 0; i < len(entries); i += c.batchSize {
		end := min(i+c.batchSize, len(entries))
		if err := c.insertBatch(ctx, id, entries[i:end]); err != nil {
			return 0, fmt.Errorf("inserting entries %d-%d of %s: %w", i, end-1, path, err)
		}
	}

	slog.Debug("Recorded archive", "path", path, "id", id, "entries", len(entries))
	return id, nil
}

func (c *Catalog) replaceArchive(ctx context.Context, path string, a *nar.Archive) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM archives WHERE path = ?`, path); err != nil {
		return 0, fmt.Errorf("removing previous record: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO archives (path, entry_count, directory_version, size, loaded_at) VALUES (?, ?, ?, ?, ?)`,
		path, a.Len(), a.Version(), a.Size(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("inserting archive: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading archive id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

func (c *Catalog) insertBatch(ctx context.Context, archiveID int64, batch []*nar.Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEntrySQL)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range batch {
		var modified sql.NullString
		if !e.LastModified.IsZero() {
			modified = sql.NullString{String: e.LastModified.UTC().Format(time.RFC3339), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, archiveID, e.Path, e.StoreType.String(),
			e.Offset, e.StoredSize, e.OriginalSize, modified, int64(e.Checksum)); err != nil {
			return fmt.Errorf("inserting %s: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
