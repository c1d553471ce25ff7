package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kadirpekel/dossier/pkg/config"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists session records via database/sql. Supports
// PostgreSQL, MySQL, and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite3"
}

// Schema is compatible with all three databases.
const createSessionsSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(255) PRIMARY KEY,
    topic TEXT NOT NULL,
    report_type VARCHAR(50) NOT NULL,
    status VARCHAR(20) NOT NULL,
    error TEXT,
    file_path TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// NewSQLStore opens the configured database, verifies connectivity,
// and ensures the schema exists.
func NewSQLStore(cfg config.SessionConfig) (*SQLStore, error) {
	switch cfg.Driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return nil, fmt.Errorf("unsupported driver: %s (supported: sqlite3, mysql, postgres)", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required for the sql session store")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: cfg.Driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, createSessionsSQL)
	return err
}

func (s *SQLStore) Create(ctx context.Context, rec *Record) error {
	query := `
INSERT INTO sessions (id, topic, report_type, status, error, file_path, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`
	if s.dialect == "postgres" {
		query = `
INSERT INTO sessions (id, topic, report_type, status, error, file_path, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Topic, rec.ReportType, rec.Status,
		rec.Error, rec.FilePath, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	query := `
SELECT id, topic, report_type, status, error, file_path, created_at, updated_at
FROM sessions
WHERE id = ?
`
	if s.dialect == "postgres" {
		query = `
SELECT id, topic, report_type, status, error, file_path, created_at, updated_at
FROM sessions
WHERE id = $1
`
	}

	var rec Record
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Topic, &rec.ReportType, &rec.Status,
		&rec.Error, &rec.FilePath, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) Update(ctx context.Context, rec *Record) error {
	query := `
UPDATE sessions
SET status = ?, error = ?, file_path = ?, updated_at = ?
WHERE id = ?
`
	if s.dialect == "postgres" {
		query = `
UPDATE sessions
SET status = $1, error = $2, file_path = $3, updated_at = $4
WHERE id = $5
`
	}

	res, err := s.db.ExecContext(ctx, query,
		rec.Status, rec.Error, rec.FilePath, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]*Record, error) {
	query := `
SELECT id, topic, report_type, status, error, file_path, created_at, updated_at
FROM sessions
ORDER BY updated_at DESC
LIMIT ?
`
	if s.dialect == "postgres" {
		query = `
SELECT id, topic, report_type, status, error, file_path, created_at, updated_at
FROM sessions
ORDER BY updated_at DESC
LIMIT $1
`
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.Topic, &rec.ReportType, &rec.Status,
			&rec.Error, &rec.FilePath, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }

var _ Store = (*SQLStore)(nil)
