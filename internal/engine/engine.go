// Package engine orchestrates transaction screening and the account
// lifecycle.
//
// Every write path for an account runs under that account's keyed lock, so
// concurrent transfers from one source serialize: each evaluation sees the
// effects of the previous one in the history windows, the ledger, and the
// state machine. The audit log is written before state is mutated; the
// accounts table is a cache the log can always rebuild.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rfontaine/sentra/internal/account"
	"github.com/rfontaine/sentra/internal/appeal"
	"github.com/rfontaine/sentra/internal/audit"
	"github.com/rfontaine/sentra/internal/config"
	"github.com/rfontaine/sentra/internal/detector"
	"github.com/rfontaine/sentra/internal/idgen"
	"github.com/rfontaine/sentra/internal/ledger"
	"github.com/rfontaine/sentra/internal/realtime"
	"github.com/rfontaine/sentra/internal/risk"
	"github.com/rfontaine/sentra/internal/scoring"
	"github.com/rfontaine/sentra/internal/syncutil"
	"github.com/rfontaine/sentra/internal/transaction"
	"github.com/rfontaine/sentra/internal/validation"
)

var (
	ErrAccountRestricted = errors.New("account is frozen or blocked")
	ErrSameAccount       = errors.New("source and target must differ")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotAppealable     = errors.New("only frozen accounts can appeal")
)

// Stores bundles the persistence backends the engine writes to.
type Stores struct {
	Accounts     account.Store
	Transactions transaction.Store
	Assessments  risk.Store
	Appeals      appeal.Store
	Audit        audit.Store
}

// Engine is the screening and lifecycle orchestrator.
type Engine struct {
	accounts     account.Store
	transactions transaction.Store
	assessments  risk.Store
	appeals      appeal.Store
	auditor      *audit.Recorder
	auditStore   audit.Store

	ledger     *ledger.Ledger
	runner     *detector.Runner
	aggregator *risk.Aggregator
	scorer     scoring.Scorer
	locks      *syncutil.ContextShardedMutex
	hub        *realtime.Hub // optional
	logger     *slog.Logger

	autoFreeze     bool
	smurfingWindow time.Duration
	circularWindow time.Duration
	velocityWindow time.Duration
}

// New wires an engine from its collaborators. hub may be nil when no
// streaming surface is mounted.
func New(cfg *config.Config, stores Stores, led *ledger.Ledger, runner *detector.Runner, scorer scoring.Scorer, hub *realtime.Hub, logger *slog.Logger) *Engine {
	return &Engine{
		accounts:       stores.Accounts,
		transactions:   stores.Transactions,
		assessments:    stores.Assessments,
		appeals:        stores.Appeals,
		auditor:        audit.NewRecorder(stores.Audit),
		auditStore:     stores.Audit,
		ledger:         led,
		runner:         runner,
		aggregator:     risk.NewAggregator(),
		scorer:         scorer,
		locks:          syncutil.NewContextShardedMutex(),
		hub:            hub,
		logger:         logger,
		autoFreeze:     cfg.AutoFreezeOnHigh,
		smurfingWindow: cfg.SmurfingWindow,
		circularWindow: cfg.CircularWindow,
		velocityWindow: cfg.VelocityWindow,
	}
}

// CreateAccount opens an account with an opening balance. The audit entry
// is written first so every account's log starts with its creation.
func (e *Engine) CreateAccount(ctx context.Context, ownerName, openingBalance string) (*account.Account, error) {
	ownerName = validation.SanitizeString(ownerName, 200)
	if ownerName == "" {
		return nil, ErrInvalidInput
	}
	if openingBalance == "" {
		openingBalance = "0.00"
	}
	if !validation.IsValidAmount(openingBalance) {
		return nil, ErrInvalidInput
	}

	acct := &account.Account{
		ID:        idgen.WithPrefix("acct_"),
		OwnerName: ownerName,
		Balance:   openingBalance,
		State:     account.StateActive,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := e.auditor.AccountCreated(ctx, acct.ID, ownerName, openingBalance); err != nil {
		return nil, err
	}
	if err := e.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}
	if err := e.ledger.Open(ctx, acct.ID, openingBalance); err != nil {
		return nil, err
	}
	e.logger.Info("account created", "account_id", acct.ID)
	return acct, nil
}

// publish sends a realtime event when a hub is attached.
func (e *Engine) publish(t realtime.EventType, data map[string]interface{}) {
	if e.hub != nil {
		e.hub.Publish(t, data)
	}
}

// historyWindow is the widest detector lookback.
func (e *Engine) historyWindow() time.Duration {
	w := e.smurfingWindow
	if e.velocityWindow > w {
		w = e.velocityWindow
	}
	return w
}
