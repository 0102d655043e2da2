package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/rfontaine/sentra/internal/idgen"
	"github.com/rfontaine/sentra/internal/money"
)

// PostgresStore persists ledger state in PostgreSQL. Balance mutations run
// inside a transaction with the balance row locked, so holds can never
// overdraw under concurrency.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ledger tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_balances (
			account_id  VARCHAR(36) PRIMARY KEY,
			available   BIGINT NOT NULL DEFAULT 0 CHECK (available >= 0),
			held        BIGINT NOT NULL DEFAULT 0 CHECK (held >= 0),
			total_in    BIGINT NOT NULL DEFAULT 0,
			total_out   BIGINT NOT NULL DEFAULT 0,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS ledger_holds (
			transaction_id  VARCHAR(36) PRIMARY KEY,
			account_id      VARCHAR(36) NOT NULL,
			amount          BIGINT NOT NULL CHECK (amount > 0),
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS ledger_entries (
			id          VARCHAR(36) PRIMARY KEY,
			account_id  VARCHAR(36) NOT NULL,
			entry_type  VARCHAR(20) NOT NULL,
			amount      BIGINT NOT NULL,
			reference   VARCHAR(36),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_entries_account
			ON ledger_entries (account_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	var b Balance
	var available, held, totalIn, totalOut int64
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, available, held, total_in, total_out, updated_at
		FROM ledger_balances
		WHERE account_id = $1
	`, accountID).Scan(&b.AccountID, &available, &held, &totalIn, &totalOut, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	b.Available = formatCents(available)
	b.Held = formatCents(held)
	b.TotalIn = formatCents(totalIn)
	b.TotalOut = formatCents(totalOut)
	return &b, nil
}

func (s *PostgresStore) Credit(ctx context.Context, accountID, amount, reference, entryType string) error {
	cents, ok := parseCents(amount)
	if !ok || cents < 0 {
		return ErrInvalidAmount
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_balances (account_id, available, total_in, updated_at)
			VALUES ($1, $2, $2, NOW())
			ON CONFLICT (account_id) DO UPDATE SET
				available = ledger_balances.available + $2,
				total_in = ledger_balances.total_in + $2,
				updated_at = NOW()
		`, accountID, cents)
		if err != nil {
			return fmt.Errorf("failed to credit balance: %w", err)
		}
		return insertEntry(ctx, tx, accountID, entryType, cents, reference)
	})
}

func (s *PostgresStore) Hold(ctx context.Context, accountID, txID, amount string) error {
	cents, ok := parseCents(amount)
	if !ok || cents <= 0 {
		return ErrInvalidAmount
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var available int64
		err := tx.QueryRowContext(ctx, `
			SELECT available FROM ledger_balances WHERE account_id = $1 FOR UPDATE
		`, accountID).Scan(&available)
		if err == sql.ErrNoRows {
			return ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock balance: %w", err)
		}
		if available < cents {
			return ErrInsufficientFunds
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE ledger_balances
			SET available = available - $2, held = held + $2, updated_at = NOW()
			WHERE account_id = $1
		`, accountID, cents); err != nil {
			return fmt.Errorf("failed to place hold: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_holds (transaction_id, account_id, amount)
			VALUES ($1, $2, $3)
		`, txID, accountID, cents); err != nil {
			return fmt.Errorf("failed to record hold: %w", err)
		}
		return insertEntry(ctx, tx, accountID, EntryHold, cents, txID)
	})
}

func (s *PostgresStore) CommitHold(ctx context.Context, txID, targetAccountID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		accountID, cents, err := takeHold(ctx, tx, txID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE ledger_balances
			SET held = held - $2, total_out = total_out + $2, updated_at = NOW()
			WHERE account_id = $1
		`, accountID, cents); err != nil {
			return fmt.Errorf("failed to settle hold: %w", err)
		}
		if err := insertEntry(ctx, tx, accountID, EntryCommit, cents, txID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_balances (account_id, available, total_in, updated_at)
			VALUES ($1, $2, $2, NOW())
			ON CONFLICT (account_id) DO UPDATE SET
				available = ledger_balances.available + $2,
				total_in = ledger_balances.total_in + $2,
				updated_at = NOW()
		`, targetAccountID, cents); err != nil {
			return fmt.Errorf("failed to credit target: %w", err)
		}
		return insertEntry(ctx, tx, targetAccountID, EntryTransfer, cents, txID)
	})
}

func (s *PostgresStore) ReleaseHold(ctx context.Context, txID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		accountID, cents, err := takeHold(ctx, tx, txID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE ledger_balances
			SET held = held - $2, available = available + $2, updated_at = NOW()
			WHERE account_id = $1
		`, accountID, cents); err != nil {
			return fmt.Errorf("failed to release hold: %w", err)
		}
		return insertEntry(ctx, tx, accountID, EntryRelease, cents, txID)
	})
}

func (s *PostgresStore) GetHistory(ctx context.Context, accountID string, limit int) ([]*Entry, error) {
	query := `
		SELECT id, account_id, entry_type, amount, reference, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		var e Entry
		var cents int64
		var reference sql.NullString
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &cents, &reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Amount = formatCents(cents)
		e.Reference = reference.String
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// takeHold locks and deletes the hold row, returning its account and amount.
func takeHold(ctx context.Context, tx *sql.Tx, txID string) (string, int64, error) {
	var accountID string
	var cents int64
	err := tx.QueryRowContext(ctx, `
		DELETE FROM ledger_holds WHERE transaction_id = $1
		RETURNING account_id, amount
	`, txID).Scan(&accountID, &cents)
	if err == sql.ErrNoRows {
		return "", 0, ErrHoldNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to take hold: %w", err)
	}
	return accountID, cents, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, accountID, entryType string, cents int64, reference string) error {
	var ref sql.NullString
	if reference != "" {
		ref = sql.NullString{String: reference, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, entry_type, amount, reference)
		VALUES ($1, $2, $3, $4, $5)
	`, idgen.WithPrefix("led_"), accountID, entryType, cents, ref); err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// Amounts are stored as integer cents.
func parseCents(amount string) (int64, bool) {
	v, ok := money.Parse(amount)
	if !ok || !v.IsInt64() {
		return 0, false
	}
	return v.Int64(), true
}

func formatCents(cents int64) string {
	return money.Format(big.NewInt(cents))
}
