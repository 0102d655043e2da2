package appeal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists appeals in PostgreSQL. A partial unique index
// enforces one pending appeal per account even under concurrent submits.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed appeal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the appeals table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS appeals (
			id             VARCHAR(36) PRIMARY KEY,
			account_id     VARCHAR(36) NOT NULL,
			justification  TEXT NOT NULL,
			status         VARCHAR(10) NOT NULL DEFAULT 'PENDING'
				CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
			reviewer       VARCHAR(100),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at    TIMESTAMPTZ
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_appeals_one_pending
			ON appeals (account_id) WHERE status = 'PENDING';

		CREATE INDEX IF NOT EXISTS idx_appeals_account
			ON appeals (account_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, a *Appeal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appeals (id, account_id, justification, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.AccountID, a.Justification, string(a.Status), a.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrAlreadyPending
		}
		return fmt.Errorf("failed to create appeal: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Appeal, error) {
	row := s.db.QueryRowContext(ctx, selectAppeal+` WHERE id = $1`, id)
	return scanAppeal(row)
}

func (s *PostgresStore) Resolve(ctx context.Context, id string, status Status, reviewer string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE appeals
		SET status = $2, reviewer = $3, resolved_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, id, string(status), reviewer)
	if err != nil {
		return fmt.Errorf("failed to resolve appeal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish missing from already resolved.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string) ([]*Appeal, error) {
	rows, err := s.db.QueryContext(ctx, selectAppeal+`
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appeals: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanAppeals(rows)
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]*Appeal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectAppeal+`
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending appeals: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanAppeals(rows)
}

const selectAppeal = `
	SELECT id, account_id, justification, status, reviewer, created_at, resolved_at
	FROM appeals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppeal(row rowScanner) (*Appeal, error) {
	var a Appeal
	var reviewer sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.AccountID, &a.Justification, &a.Status, &reviewer, &a.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan appeal: %w", err)
	}
	a.Reviewer = reviewer.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func scanAppeals(rows *sql.Rows) ([]*Appeal, error) {
	var result []*Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
