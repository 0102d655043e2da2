package account

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the accounts table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id          VARCHAR(36) PRIMARY KEY,
			owner_name  VARCHAR(255) NOT NULL,
			state       VARCHAR(10) NOT NULL DEFAULT 'ACTIVE'
				CHECK (state IN ('ACTIVE', 'FLAGGED', 'FROZEN', 'BLOCKED')),
			risk_score  NUMERIC(5,4) NOT NULL DEFAULT 0 CHECK (risk_score >= 0 AND risk_score <= 1),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_accounts_state ON accounts (state);
		CREATE INDEX IF NOT EXISTS idx_accounts_risk_score ON accounts (risk_score DESC);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, acct *Account) error {
	state := acct.State
	if state == "" {
		state = StateActive
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_name, state, risk_score)
		VALUES ($1, $2, $3, $4)
	`, acct.ID, acct.OwnerName, string(state), acct.RiskScore)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_name, state, risk_score, created_at
		FROM accounts WHERE id = $1
	`, id)

	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return acct, err
}

func (s *PostgresStore) UpdateState(ctx context.Context, id string, from, to State) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET state = $1 WHERE id = $2 AND state = $3
	`, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *PostgresStore) UpdateRiskScore(ctx context.Context, id string, score float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET risk_score = $1 WHERE id = $2
	`, score, id)
	if err != nil {
		return fmt.Errorf("failed to update risk score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Account, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_name, state, risk_score, created_at
		FROM accounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return scanAccounts(rows)
}

func (s *PostgresStore) ListByState(ctx context.Context, state State, limit int) ([]*Account, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_name, state, risk_score, created_at
		FROM accounts
		WHERE state = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list by state: %w", err)
	}
	return scanAccounts(rows)
}

func (s *PostgresStore) ListHighRisk(ctx context.Context, threshold float64, limit int) ([]*Account, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_name, state, risk_score, created_at
		FROM accounts
		WHERE risk_score >= $1
		ORDER BY risk_score DESC
		LIMIT $2
	`, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list high-risk accounts: %w", err)
	}
	return scanAccounts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	acct := &Account{}
	var state string
	if err := row.Scan(&acct.ID, &acct.OwnerName, &state, &acct.RiskScore, &acct.CreatedAt); err != nil {
		return nil, err
	}
	acct.State = State(state)
	return acct, nil
}

func scanAccounts(rows *sql.Rows) ([]*Account, error) {
	defer func() { _ = rows.Close() }()

	var result []*Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}
