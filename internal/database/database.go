package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"clipflow/internal/logging"
	"clipflow/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database is the durable store for video and user records.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens (or creates) the SQLite database at dbPath and applies the
// schema. The parent directory must already exist and be writable; use
// startup.LoadConfig to validate that before calling.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// WAL keeps readers unblocked while the pipeline writes progress.
	// busy_timeout helps prevent "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

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

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
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

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- User accounts
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		fullname TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'editor',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email COLLATE NOCASE);

	-- Video records
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		stored_filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		source_path TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT 'video/mp4',
		status TEXT NOT NULL DEFAULT 'uploaded',
		sensitivity TEXT NOT NULL DEFAULT 'unknown',
		progress INTEGER NOT NULL DEFAULT 0,
		variant_360 TEXT,
		variant_720 TEXT,
		variant_1080 TEXT,
		thumb_path TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		FOREIGN KEY (owner) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_videos_owner ON videos(owner);
	CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(status);
	CREATE INDEX IF NOT EXISTS idx_videos_created ON videos(created_at);
	CREATE INDEX IF NOT EXISTS idx_videos_owner_created ON videos(owner, created_at);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping verifies the connection is still usable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
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

// UpdateDBMetrics refreshes database connection gauges.
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}
