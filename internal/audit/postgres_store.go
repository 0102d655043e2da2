package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists audit entries in PostgreSQL. A sequence column
// fixes the authoritative order even when timestamps collide.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit_log table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			seq         BIGSERIAL PRIMARY KEY,
			id          VARCHAR(36) NOT NULL UNIQUE,
			account_id  VARCHAR(36) NOT NULL,
			event       VARCHAR(30) NOT NULL,
			details     JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_account
			ON audit_log (account_id, seq);
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, account_id, event, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.AccountID, string(e.Event), []byte(e.Details), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, event, details, created_at
		FROM audit_log
		WHERE account_id = $1
		ORDER BY seq ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, event, details, created_at
		FROM audit_log
		ORDER BY seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var result []*Entry
	for rows.Next() {
		var e Entry
		var details []byte
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Event, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Details = details
		result = append(result, &e)
	}
	return result, rows.Err()
}
