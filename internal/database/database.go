package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"library-indexer/internal/logging"
	"library-indexer/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// schemaVersion is stored in the metadata table.
const schemaVersion = 1

// Database is the metadata store of a single library.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open opens (creating if needed) the database file at dbPath. The parent
// directory must exist and be writable.
func Open(ctx context.Context, dbPath string, opts Options) (*Database, error) {
	opts = opts.withDefaults()
	logging.Debug("Opening database %s (journal=%s sync=%s)", dbPath, opts.JournalMode, opts.Synchronous)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	db, err := sql.Open(DriverName, buildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx, opts); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return d, nil
}

func (d *Database) initialize(ctx context.Context, opts Options) error {
	pragmas := []string{"PRAGMA temp_store = MEMORY"}
	if opts.MMapSize > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA mmap_size = %d", opts.MMapSize))
	}
	for _, p := range pragmas {
		if _, err := d.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	// Timestamps are Unix nanoseconds.
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE CHECK (path <> ''),
		filename TEXT NOT NULL,
		folder TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		format TEXT NOT NULL,
		file_type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		modified_at INTEGER NOT NULL,
		fingerprint TEXT,
		thumbnail_path TEXT,
		thumbnail_size INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_images_folder ON images(folder);
	CREATE INDEX IF NOT EXISTS idx_images_format ON images(format);
	CREATE INDEX IF NOT EXISTS idx_images_size ON images(size);
	CREATE INDEX IF NOT EXISTS idx_images_created_at ON images(created_at);
	CREATE INDEX IF NOT EXISTS idx_images_modified_at ON images(modified_at);
	CREATE INDEX IF NOT EXISTS idx_images_indexed_at ON images(indexed_at);
	CREATE INDEX IF NOT EXISTS idx_images_filename ON images(filename COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS folders (
		path TEXT PRIMARY KEY,
		image_count INTEGER NOT NULL DEFAULT 0,
		last_scanned_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations records the schema version and refuses databases written by
// a newer schema.
func (d *Database) runMigrations(ctx context.Context) error {
	current, err := d.GetMetadata(ctx, keySchemaVersion)
	if errors.Is(err, ErrNotFound) {
		return d.SetMetadata(ctx, keySchemaVersion, strconv.Itoa(schemaVersion))
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	v, err := strconv.Atoi(current)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", current, err)
	}
	if v > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", v, schemaVersion)
	}
	if v < schemaVersion {
		logging.Info("Migrating database %s from schema %d to %d", d.dbPath, v, schemaVersion)
		return d.SetMetadata(ctx, keySchemaVersion, strconv.Itoa(schemaVersion))
	}
	return nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Close closes the database connection.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

// inTx runs fn inside a transaction, committing when fn succeeds. The caller
// must hold d.mu for writing.
func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	err = tx.Commit()
	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(start).Seconds())
	return err
}

// writeTx runs fn in a transaction under the write lock, retrying when
// another process holds the database lock. Failures are wrapped in a
// StoreError.
func (d *Database) writeTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	start := time.Now()
	defer func() { recordQuery(op, start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	err = retry.Do(
		func() error { return d.inTx(ctx, fn) },
		databaseRetryOptions(ctx, op)...,
	)
	if err != nil {
		return &StoreError{Op: op, Err: err}
	}
	return nil
}

// databaseRetryOptions returns retry options for transient lock errors:
// linear backoff of 100ms, 200ms, 300ms.
func databaseRetryOptions(ctx context.Context, op string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			metrics.DBLockRetriesTotal.WithLabelValues(op).Inc()
			logging.Debug("Database locked during %s, retrying (attempt %d): %v", op, n+1, err)
		}),
	}
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// Stats summarizes the database contents.
func (d *Database) Stats(ctx context.Context) (Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var s Stats
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN thumbnail_path IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(thumbnail_size), 0),
			COALESCE(SUM(size), 0)
		FROM images
	`).Scan(&s.Images, &s.WithoutThumbnail, &s.ThumbnailBytes, &s.TotalBytes)
	if err != nil {
		return s, err
	}
	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM folders").Scan(&s.Folders)
	return s, err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only (mode %v), writes will fail", path, info.Mode())
			if path != dbPath {
				if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
					logging.Error("Failed to fix permissions of %s: %v", path, chmodErr)
				} else {
					logging.Info("Fixed permissions of %s", path)
				}
			}
		}
	}

	return nil
}
