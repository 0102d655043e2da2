package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rfontaine/sentra/internal/detector"
)

// PostgresStore persists risk assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id                VARCHAR(36) PRIMARY KEY,
			account_id        VARCHAR(36) NOT NULL,
			transaction_id    VARCHAR(36),
			probability       NUMERIC(4,3) NOT NULL CHECK (probability >= 0 AND probability <= 1),
			rule_probability  NUMERIC(4,3) NOT NULL,
			ml_probability    NUMERIC(4,3) NOT NULL,
			level             VARCHAR(10) NOT NULL CHECK (level IN ('LOW', 'MEDIUM', 'HIGH')),
			findings          JSONB NOT NULL DEFAULT '[]',
			primary_flag      VARCHAR(20),
			source            VARCHAR(10) NOT NULL CHECK (source IN ('combined', 'rule_only')),
			evaluated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_account
			ON risk_assessments (account_id, evaluated_at DESC);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_risk_assessments_tx
			ON risk_assessments (transaction_id) WHERE transaction_id IS NOT NULL;
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, a *RiskAssessment) error {
	factorsJSON, err := json.Marshal(a.ContributingFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	var txID sql.NullString
	if a.TransactionID != "" {
		txID = sql.NullString{String: a.TransactionID, Valid: true}
	}
	var flag sql.NullString
	if a.PrimaryFlag != "" {
		flag = sql.NullString{String: string(a.PrimaryFlag), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments
			(id, account_id, transaction_id, probability, rule_probability, ml_probability,
			 level, findings, primary_flag, source, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		a.ID, a.AccountID, txID, a.Probability, a.RuleProbability, a.MLProbability,
		string(a.Level), factorsJSON, flag, string(a.Source), a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record risk assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*RiskAssessment, error) {
	row := s.db.QueryRowContext(ctx, selectAssessment+` WHERE id = $1`, id)
	return scanAssessment(row)
}

func (s *PostgresStore) GetByTransaction(ctx context.Context, txID string) (*RiskAssessment, error) {
	row := s.db.QueryRowContext(ctx, selectAssessment+` WHERE transaction_id = $1`, txID)
	return scanAssessment(row)
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*RiskAssessment, error) {
	rows, err := s.db.QueryContext(ctx, selectAssessment+`
		WHERE account_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

const selectAssessment = `
	SELECT id, account_id, transaction_id, probability, rule_probability, ml_probability,
	       level, findings, primary_flag, source, evaluated_at
	FROM risk_assessments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*RiskAssessment, error) {
	var a RiskAssessment
	var txID, flag sql.NullString
	var factorsJSON []byte

	err := row.Scan(&a.ID, &a.AccountID, &txID, &a.Probability, &a.RuleProbability,
		&a.MLProbability, &a.Level, &factorsJSON, &flag, &a.Source, &a.EvaluatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan risk assessment: %w", err)
	}
	a.TransactionID = txID.String
	a.PrimaryFlag = detector.Kind(flag.String)
	if err := json.Unmarshal(factorsJSON, &a.ContributingFactors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
	}
	return &a, nil
}
