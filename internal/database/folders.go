package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"library-indexer/internal/library"
)

const folderCountSQL = "SELECT COUNT(*) FROM images"

func countUnder(folder string) (string, []interface{}) {
	if folder == "" {
		return folderCountSQL, nil
	}
	clause, args := underPrefix("folder", folder)
	return folderCountSQL + " WHERE " + clause, args
}

// DeleteByFolderPrefix removes every image at or below prefix together with
// the folder rows for prefix and its descendants. It returns the number of
// images removed.
func (d *Database) DeleteByFolderPrefix(ctx context.Context, prefix string) (int64, error) {
	prefix = normalizeFolder(prefix)
	if prefix == "" {
		return 0, library.Invalid("prefix", "must not be empty")
	}

	var deleted int64
	err := d.writeTx(ctx, "delete_prefix", func(tx *sql.Tx) error {
		clause, args := underPrefix("path", prefix)
		res, err := tx.ExecContext(ctx, "DELETE FROM images WHERE "+clause, args...)
		if err != nil {
			return err
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return err
		}

		clause, args = underPrefix("path", prefix)
		_, err = tx.ExecContext(ctx, "DELETE FROM folders WHERE "+clause, args...)
		return err
	})
	return deleted, err
}

// RecomputeFolderCount counts the images at or below folder and stores the
// result on the folder row if one exists.
func (d *Database) RecomputeFolderCount(ctx context.Context, folder string) (int, error) {
	folder = normalizeFolder(folder)

	var count int
	err := d.writeTx(ctx, "recompute_folder_count", func(tx *sql.Tx) error {
		var err error
		count, err = recomputeFolder(ctx, tx, folder)
		return err
	})
	return count, err
}

// RecomputeFolderCounts recomputes several folders in one transaction.
func (d *Database) RecomputeFolderCounts(ctx context.Context, folders []string) error {
	if len(folders) == 0 {
		return nil
	}
	return d.writeTx(ctx, "recompute_folder_count", func(tx *sql.Tx) error {
		for _, folder := range folders {
			if _, err := recomputeFolder(ctx, tx, normalizeFolder(folder)); err != nil {
				return err
			}
		}
		return nil
	})
}

func recomputeFolder(ctx context.Context, tx *sql.Tx, folder string) (int, error) {
	query, args := countUnder(folder)
	var count int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	_, err := tx.ExecContext(ctx, "UPDATE folders SET image_count = ? WHERE path = ?", count, folder)
	return count, err
}

// UpsertFolders creates or refreshes folder rows, recounting each.
func (d *Database) UpsertFolders(ctx context.Context, folders []string, scannedAt time.Time) error {
	if len(folders) == 0 {
		return nil
	}
	return d.writeTx(ctx, "upsert_folders", func(tx *sql.Tx) error {
		return upsertFolders(ctx, tx, folders, scannedAt)
	})
}

// ReplaceFolders makes folders the complete set of folder rows.
func (d *Database) ReplaceFolders(ctx context.Context, folders []string, scannedAt time.Time) error {
	return d.writeTx(ctx, "upsert_folders", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM folders"); err != nil {
			return err
		}
		return upsertFolders(ctx, tx, folders, scannedAt)
	})
}

func upsertFolders(ctx context.Context, tx *sql.Tx, folders []string, scannedAt time.Time) error {
	for _, folder := range folders {
		folder = normalizeFolder(folder)
		query, args := countUnder(folder)
		var count int
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO folders (path, image_count, last_scanned_at) VALUES (?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				image_count = excluded.image_count,
				last_scanned_at = excluded.last_scanned_at
		`, folder, count, toNanos(scannedAt))
		if err != nil {
			return err
		}
	}
	return nil
}

// GetFolder returns the folder row for path, or ErrNotFound.
func (d *Database) GetFolder(ctx context.Context, path string) (*Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var (
		f       Folder
		scanned int64
	)
	err := d.db.QueryRowContext(ctx,
		"SELECT path, image_count, last_scanned_at FROM folders WHERE path = ?",
		normalizeFolder(path),
	).Scan(&f.Path, &f.ImageCount, &scanned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.LastScannedAt = fromNanos(scanned)
	return &f, nil
}

// ListFolders returns every folder row ordered by path.
func (d *Database) ListFolders(ctx context.Context) ([]Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT path, image_count, last_scanned_at FROM folders ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var folders []Folder
	for rows.Next() {
		var (
			f       Folder
			scanned int64
		)
		if err := rows.Scan(&f.Path, &f.ImageCount, &scanned); err != nil {
			return nil, err
		}
		f.LastScannedAt = fromNanos(scanned)
		folders = append(folders, f)
	}
	return folders, rows.Err()
}
