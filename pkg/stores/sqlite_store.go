package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/relaygrid/relaygrid/pkg/registry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoSnapshot is returned when a registry has no persisted snapshot.
var ErrNoSnapshot = errors.New("no snapshot found")

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Open initializes the database connection, enables WAL mode, and runs
// pending migrations.
func (s *SQLiteStore) Open(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate runs database migrations from the embedded filesystem.
func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveSnapshot persists a registry state and returns the record ID.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, registryName string, state registry.State) (int64, error) {
	entries, err := json.Marshal(fromState(state))
	if err != nil {
		return 0, fmt.Errorf("failed to encode snapshot entries: %w", err)
	}

	query := `
		INSERT INTO snapshots (registry, locked, taken_at, entries, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		registryName,
		state.Locked,
		state.TakenAt.UTC().Format(time.RFC3339Nano),
		string(entries),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot ID: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the most recent snapshot for a registry.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, registryName string) (*SnapshotRecord, error) {
	query := `
		SELECT id, registry, locked, taken_at, entries, created_at
		FROM snapshots
		WHERE registry = ?
		ORDER BY id DESC
		LIMIT 1
	`

	rec, err := scanSnapshot(s.db.QueryRowContext(ctx, query, registryName))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w for registry %s", ErrNoSnapshot, registryName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return rec, nil
}

// ListSnapshots returns recent snapshots for a registry, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, registryName string, limit int) ([]*SnapshotRecord, error) {
	query := `
		SELECT id, registry, locked, taken_at, entries, created_at
		FROM snapshots
		WHERE registry = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, registryName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	records := []*SnapshotRecord{}
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return records, nil
}

// Prune drops all but the newest keep snapshots for a registry.
func (s *SQLiteStore) Prune(ctx context.Context, registryName string, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}

	query := `
		DELETE FROM snapshots
		WHERE registry = ?
		  AND id NOT IN (
			SELECT id FROM snapshots
			WHERE registry = ?
			ORDER BY id DESC
			LIMIT ?
		  )
	`

	result, err := s.db.ExecContext(ctx, query, registryName, registryName, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*SnapshotRecord, error) {
	var (
		rec       SnapshotRecord
		takenAt   string
		createdAt string
		entries   string
	)

	if err := row.Scan(&rec.ID, &rec.Registry, &rec.Locked, &takenAt, &entries, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if rec.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
		return nil, fmt.Errorf("failed to parse taken_at: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(entries), &rec.Entries); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot entries: %w", err)
	}
	return &rec, nil
}

var _ Store = (*SQLiteStore)(nil)
