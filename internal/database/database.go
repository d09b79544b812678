package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"peekraw/internal/logging"
	"peekraw/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Entry is one row of the thumbnail index.
type Entry struct {
	Key       string
	Seq       uint64
	Size      int64
	CreatedAt time.Time
}

// Database is the SQLite index of the thumbnail disk tier. It records which
// keys have a blob on disk, their size, and the order they were written in.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// New opens (creating if needed) the index at dbPath. The parent directory
// must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Debug("Cache index path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Cache index permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A single writer owns the index; one connection keeps statements ordered.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	d.UpdateDBMetrics()
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_entries_seq ON entries(seq);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations applies schema migrations to indexes created by older
// versions.
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: created_at was added after the first release
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('entries')
		WHERE name='created_at'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for created_at column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating cache index: adding created_at column")
		_, err = d.db.ExecContext(ctx, `
			ALTER TABLE entries ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0
		`)
		if err != nil {
			return fmt.Errorf("failed to add created_at column: %w", err)
		}
	}

	return nil
}

// Path returns the location of the index file.
func (d *Database) Path() string {
	return d.dbPath
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Entries returns every row ordered by write sequence, oldest first.
func (d *Database) Entries(ctx context.Context) (entries []Entry, err error) {
	start := time.Now()
	defer func() { recordQuery("load", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT key, seq, size, created_at FROM entries ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var created int64
		if err = rows.Scan(&e.Key, &e.Seq, &e.Size, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	err = rows.Err()
	return entries, err
}

// Upsert records that key now has a blob of the given size written at seq.
func (d *Database) Upsert(ctx context.Context, e Entry) (err error) {
	start := time.Now()
	defer func() { recordQuery("upsert", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO entries (key, seq, size, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET seq = excluded.seq, size = excluded.size, created_at = excluded.created_at
	`, e.Key, e.Seq, e.Size, created.Unix())
	return err
}

// Delete removes the rows for keys. Missing keys are ignored.
func (d *Database) Delete(ctx context.Context, keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { recordQuery("delete", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM entries WHERE key = ?`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err = stmt.ExecContext(ctx, key); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Purge removes every row.
func (d *Database) Purge(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("purge", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `DELETE FROM entries`)
	return err
}

// Vacuum optimizes the database.
func (d *Database) Vacuum() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	d.updateSizeMetric()
	return err
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

// UpdateDBMetrics refreshes the index size gauge.
func (d *Database) UpdateDBMetrics() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateSizeMetric()
}

func (d *Database) updateSizeMetric() {
	var total int64
	for _, p := range []string{d.dbPath, d.dbPath + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	metrics.DBSizeBytes.Set(float64(total))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Cache index directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		logging.Debug("Index file exists: %s (mode: %v, size: %d bytes)", p, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only! Mode: %v - this will cause write failures", filepath.Base(p), info.Mode())
			if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions on %s: %v", p, chmodErr)
			} else {
				logging.Info("Fixed permissions on %s", filepath.Base(p))
			}
		}
	}

	return nil
}
