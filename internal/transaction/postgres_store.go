package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id                 VARCHAR(36) PRIMARY KEY,
			source_account_id  VARCHAR(36) NOT NULL,
			target_account_id  VARCHAR(36) NOT NULL,
			amount             NUMERIC(20,2) NOT NULL CHECK (amount > 0),
			currency           VARCHAR(3) NOT NULL DEFAULT 'USD',
			status             VARCHAR(10) NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'FLAGGED', 'BLOCKED')),
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_source_time
			ON transactions (source_account_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_transactions_target_time
			ON transactions (target_account_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_transactions_status
			ON transactions (status, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	ts := tx.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, source_account_id, target_account_id, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,2), $5, $6, $7)
	`, tx.ID, tx.SourceAccountID, tx.TargetAccountID, tx.Amount, tx.Currency, string(tx.Status), ts)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_account_id, target_account_id, amount::TEXT, currency, status, created_at
		FROM transactions WHERE id = $1
	`, id)

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return tx, err
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_account_id, target_account_id, amount::TEXT, currency, status, created_at
		FROM transactions
		WHERE source_account_id = $1 OR target_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (s *PostgresStore) ListBySourceSince(ctx context.Context, accountID string, since time.Time) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_account_id, target_account_id, amount::TEXT, currency, status, created_at
		FROM transactions
		WHERE source_account_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list source window: %w", err)
	}
	return scanTransactions(rows)
}

func (s *PostgresStore) ListSince(ctx context.Context, since time.Time, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_account_id, target_account_id, amount::TEXT, currency, status, created_at
		FROM transactions
		WHERE created_at >= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_account_id, target_account_id, amount::TEXT, currency, status, created_at
		FROM transactions
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list by status: %w", err)
	}
	return scanTransactions(rows)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3
	`, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from a lost compare-and-set.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStatusAlreadySet
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	tx := &Transaction{}
	var status string
	if err := row.Scan(&tx.ID, &tx.SourceAccountID, &tx.TargetAccountID, &tx.Amount, &tx.Currency, &status, &tx.Timestamp); err != nil {
		return nil, err
	}
	tx.Status = Status(status)
	return tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}
