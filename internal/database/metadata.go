package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Keys of the metadata table.
const (
	keySchemaVersion  = "schema_version"
	keyLastScanPrefix = "last_scan_"
)

// GetMetadata returns the value stored under key, or ErrNotFound.
func (d *Database) GetMetadata(ctx context.Context, key string) (value string, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			recordQuery("get_metadata", start, nil)
			return
		}
		recordQuery("get_metadata", start, err)
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var v sql.NullString
	err = d.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrNotFound
	case err != nil:
		return "", err
	}
	return v.String, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (d *Database) SetMetadata(ctx context.Context, key, value string) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_metadata", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetLastScan returns when the last scan of kind started, or the zero time
// if the library was never scanned that way.
func (d *Database) GetLastScan(ctx context.Context, kind string) (time.Time, error) {
	v, err := d.GetMetadata(ctx, keyLastScanPrefix+kind)
	if errors.Is(err, ErrNotFound) || (err == nil && v == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last %s scan %q: %w", kind, v, err)
	}
	return time.Unix(0, n), nil
}

// SetLastScan records the start time of a scan of kind.
func (d *Database) SetLastScan(ctx context.Context, kind string, t time.Time) error {
	v := ""
	if !t.IsZero() {
		v = strconv.FormatInt(t.UnixNano(), 10)
	}
	return d.SetMetadata(ctx, keyLastScanPrefix+kind, v)
}
