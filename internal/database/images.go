package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"library-indexer/internal/mediatypes"
)

const imageColumns = `path, filename, folder, size, width, height, format, file_type,
	created_at, modified_at, fingerprint, thumbnail_path, thumbnail_size, indexed_at`

const upsertImageSQL = `
	INSERT INTO images (` + imageColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		filename = excluded.filename,
		folder = excluded.folder,
		size = excluded.size,
		width = excluded.width,
		height = excluded.height,
		format = excluded.format,
		file_type = excluded.file_type,
		created_at = excluded.created_at,
		modified_at = excluded.modified_at,
		fingerprint = excluded.fingerprint,
		thumbnail_path = excluded.thumbnail_path,
		thumbnail_size = excluded.thumbnail_size,
		indexed_at = excluded.indexed_at
`

// UpsertBatch inserts or replaces the given images in one transaction.
// Either every row is committed or none is.
func (d *Database) UpsertBatch(ctx context.Context, images []Image) error {
	if len(images) == 0 {
		return nil
	}

	return d.writeTx(ctx, "upsert_batch", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertImageSQL)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for i := range images {
			img := &images[i]
			indexedAt := img.IndexedAt
			if indexedAt.IsZero() {
				indexedAt = time.Now()
			}
			var thumb sql.NullString
			if img.HasThumbnail() {
				thumb = sql.NullString{String: *img.ThumbnailPath, Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				img.Path, img.Filename, img.Folder, img.Size, img.Width, img.Height,
				img.Format, string(img.FileType),
				toNanos(img.CreatedAt), toNanos(img.ModifiedAt),
				img.Fingerprint, thumb, img.ThumbnailSize, toNanos(indexedAt),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetImage returns the image stored at path, or ErrNotFound.
func (d *Database) GetImage(ctx context.Context, path string) (*Image, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, "SELECT "+imageColumns+" FROM images WHERE path = ?", path)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// DeleteByPath removes the image at path. Deleting a missing path is not an
// error.
func (d *Database) DeleteByPath(ctx context.Context, path string) error {
	return d.writeTx(ctx, "delete_path", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM images WHERE path = ?", path)
		return err
	})
}

// IndexedState returns the change-detection state of every indexed image,
// keyed by path.
func (d *Database) IndexedState(ctx context.Context) (state map[string]FileState, err error) {
	start := time.Now()
	defer func() { recordQuery("indexed_state", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT path, size, width, height, modified_at, thumbnail_path FROM images")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	state = make(map[string]FileState)
	for rows.Next() {
		var (
			path  string
			fs    FileState
			mod   int64
			thumb sql.NullString
		)
		if err := rows.Scan(&path, &fs.Size, &fs.Width, &fs.Height, &mod, &thumb); err != nil {
			return nil, err
		}
		fs.ModifiedAt = fromNanos(mod)
		fs.ThumbnailPath = thumb.String
		state[path] = fs
	}
	return state, rows.Err()
}

// DeleteIndexedBefore removes images whose index timestamp is older than
// cutoff, i.e. files a full scan started at cutoff did not see.
func (d *Database) DeleteIndexedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := d.writeTx(ctx, "delete_indexed_before", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM images WHERE indexed_at < ?", toNanos(cutoff))
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

// ThumbnailPaths returns the set of artifact paths referenced by images.
func (d *Database) ThumbnailPaths(ctx context.Context) (map[string]bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT thumbnail_path FROM images WHERE thumbnail_path IS NOT NULL")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	known := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		known[p] = true
	}
	return known, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImage(row rowScanner) (*Image, error) {
	var (
		img                        Image
		fileType                   string
		created, modified, indexed int64
		fingerprint, thumbnailPath sql.NullString
	)
	err := row.Scan(
		&img.Path, &img.Filename, &img.Folder, &img.Size, &img.Width, &img.Height,
		&img.Format, &fileType, &created, &modified,
		&fingerprint, &thumbnailPath, &img.ThumbnailSize, &indexed,
	)
	if err != nil {
		return nil, err
	}
	img.FileType = mediatypes.FileType(fileType)
	img.CreatedAt = fromNanos(created)
	img.ModifiedAt = fromNanos(modified)
	img.IndexedAt = fromNanos(indexed)
	img.Fingerprint = fingerprint.String
	if thumbnailPath.Valid {
		p := thumbnailPath.String
		img.ThumbnailPath = &p
	}
	return &img, nil
}
