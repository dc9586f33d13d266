package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/santridigital/kreator-gateway/internal/shared/models"
)

// PostgresStore is the durable Store implementation. It keeps serialized
// documents in a single key-value table and records generation requests in
// generation_logs.
type PostgresStore struct {
	conn *sql.DB
}

// NewPostgres opens a postgres-backed store and verifies the connection.
func NewPostgres(databaseURL string) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &PostgresStore{conn: conn}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS generation_logs (
			id            BIGSERIAL PRIMARY KEY,
			credential_id TEXT,
			feature       TEXT NOT NULL,
			endpoint      TEXT NOT NULL,
			job_id        TEXT,
			status        TEXT NOT NULL,
			result_url    TEXT,
			error_kind    TEXT,
			error_message TEXT,
			latency_ms    INTEGER NOT NULL DEFAULT 0,
			attempts      INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.conn.Close()
}

// Get retrieves a document by key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)

	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}
	return value, nil
}

// Set stores a document under a key, replacing any previous value.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
	`, key, value)

	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// LogGeneration records one generation request outcome.
func (s *PostgresStore) LogGeneration(ctx context.Context, entry *models.GenerationLog) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO generation_logs (
			credential_id, feature, endpoint, job_id, status, result_url,
			error_kind, error_message, latency_ms, attempts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.CredentialID,
		entry.Feature,
		entry.Endpoint,
		entry.JobID,
		entry.Status,
		entry.ResultURL,
		entry.ErrorKind,
		entry.ErrorMessage,
		entry.LatencyMs,
		entry.Attempts,
	)

	return err
}
