package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rfontaine/sentra/internal/account"
	"github.com/rfontaine/sentra/internal/appeal"
	"github.com/rfontaine/sentra/internal/audit"
	"github.com/rfontaine/sentra/internal/engine"
	"github.com/rfontaine/sentra/internal/ledger"
	"github.com/rfontaine/sentra/internal/logging"
	"github.com/rfontaine/sentra/internal/pagination"
	"github.com/rfontaine/sentra/internal/risk"
	"github.com/rfontaine/sentra/internal/transaction"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func limitQuery(c *gin.Context) int {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

// writeEngineError maps domain sentinels to HTTP responses. Anything not in
// the taxonomy is a 500 with a generic body; details stay in the logs.
func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request parameters",
		})
	case errors.Is(err, engine.ErrSameAccount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "same_account",
			"message": "Source and target accounts must differ",
		})
	case errors.Is(err, engine.ErrAccountRestricted):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "account_restricted",
			"message": "Account is frozen or blocked",
		})
	case errors.Is(err, engine.ErrNotAppealable):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "not_appealable",
			"message": "Only frozen accounts can be appealed",
		})
	case errors.Is(err, account.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Account not found",
		})
	case errors.Is(err, transaction.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Transaction not found",
		})
	case errors.Is(err, transaction.ErrStatusAlreadySet):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "status_already_set",
			"message": "Transaction status was already decided",
		})
	case errors.Is(err, appeal.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Appeal not found",
		})
	case errors.Is(err, appeal.ErrAlreadyPending):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "appeal_pending",
			"message": "Account already has a pending appeal",
		})
	case errors.Is(err, appeal.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "appeal_resolved",
			"message": "Appeal was already resolved",
		})
	case errors.Is(err, risk.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No assessment recorded for this transaction",
		})
	case errors.Is(err, audit.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No audit entries for this account",
		})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "insufficient_funds",
			"message": "Available balance does not cover the transfer",
		})
	case errors.Is(err, ledger.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Account has no ledger position",
		})
	case errors.Is(err, account.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_transition",
			"message": "Account state does not permit this change",
		})
	default:
		logging.L(c.Request.Context()).Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}
}

// -----------------------------------------------------------------------------
// Accounts
// -----------------------------------------------------------------------------

// CreateAccountRequest is the payload for opening a monitored account
type CreateAccountRequest struct {
	OwnerName      string `json:"ownerName" binding:"required"`
	OpeningBalance string `json:"openingBalance"`
}

// createAccount handles POST /v1/accounts
func (s *Server) createAccount(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	acct, err := s.engine.CreateAccount(ctx, req.OwnerName, req.OpeningBalance)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, acct)
}

// getAccount handles GET /v1/accounts/:id
func (s *Server) getAccount(c *gin.Context) {
	acct, err := s.engine.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

// listAccounts handles GET /v1/accounts?state=&limit=&offset=
func (s *Server) listAccounts(c *gin.Context) {
	ctx := c.Request.Context()
	limit := limitQuery(c)

	if state := c.Query("state"); state != "" {
		accounts, err := s.engine.ListAccountsByState(ctx, account.State(state), limit)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"accounts": accounts, "count": len(accounts)})
		return
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	accounts, err := s.engine.ListAccounts(ctx, limit, offset)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts, "count": len(accounts)})
}

// listHighRiskAccounts handles GET /v1/accounts/high-risk?threshold=
func (s *Server) listHighRiskAccounts(c *gin.Context) {
	threshold := 0.7
	if raw := c.Query("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil || t < 0 || t > 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_threshold",
				"message": "threshold must be a number in [0,1]",
			})
			return
		}
		threshold = t
	}

	accounts, err := s.engine.ListHighRiskAccounts(c.Request.Context(), threshold, limitQuery(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts":  accounts,
		"count":     len(accounts),
		"threshold": threshold,
	})
}

// getBalance handles GET /v1/accounts/:id/balance
func (s *Server) getBalance(c *gin.Context) {
	bal, err := s.engine.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

// getLedgerHistory handles GET /v1/accounts/:id/ledger
func (s *Server) getLedgerHistory(c *gin.Context) {
	entries, err := s.engine.GetLedgerHistory(c.Request.Context(), c.Param("id"), limitQuery(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// listAccountTransactions handles GET /v1/accounts/:id/transactions.
// Supports opaque cursor pagination via ?cursor= from a previous page.
func (s *Server) listAccountTransactions(c *gin.Context) {
	limit := limitQuery(c)
	cur, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Cursor is not valid",
		})
		return
	}

	// Fetch past the requested page so the cursor can land anywhere in it
	txs, err := s.engine.ListAccountTransactions(c.Request.Context(), c.Param("id"), maxListLimit)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	if cur != nil {
		txs = afterCursor(txs, cur)
	}

	page, next, more := pagination.ComputePage(txs, limit, func(tx *transaction.Transaction) (time.Time, string) {
		return tx.Timestamp, tx.ID
	})
	c.JSON(http.StatusOK, gin.H{
		"transactions": page,
		"count":        len(page),
		"nextCursor":   next,
		"hasMore":      more,
	})
}

// afterCursor drops everything up to and including the cursor position in a
// newest-first listing.
func afterCursor(txs []*transaction.Transaction, cur *pagination.Cursor) []*transaction.Transaction {
	for i, tx := range txs {
		if tx.ID == cur.ID {
			return txs[i+1:]
		}
	}
	// The cursor row is gone; fall back to its timestamp
	for i, tx := range txs {
		if tx.Timestamp.Before(cur.CreatedAt) {
			return txs[i:]
		}
	}
	return nil
}

// listAssessments handles GET /v1/accounts/:id/assessments
func (s *Server) listAssessments(c *gin.Context) {
	asmts, err := s.engine.ListAssessments(c.Request.Context(), c.Param("id"), limitQuery(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": asmts, "count": len(asmts)})
}

// getAuditLog handles GET /v1/accounts/:id/audit
func (s *Server) getAuditLog(c *gin.Context) {
	entries, err := s.engine.GetAuditLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// getAccountReport handles GET /v1/accounts/:id/report
func (s *Server) getAccountReport(c *gin.Context) {
	report, err := s.engine.AccountRiskReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// evaluateTransaction handles POST /v1/transactions
func (s *Server) evaluateTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	var req engine.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	result, err := s.engine.EvaluateTransaction(ctx, req)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// getTransaction handles GET /v1/transactions/:id
func (s *Server) getTransaction(c *gin.Context) {
	tx, err := s.engine.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// explainTransaction handles GET /v1/transactions/:id/explain
func (s *Server) explainTransaction(c *gin.Context) {
	result, err := s.engine.ExplainTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// -----------------------------------------------------------------------------
// Appeals
// -----------------------------------------------------------------------------

// SubmitAppealRequest is the payload for contesting a freeze
type SubmitAppealRequest struct {
	Justification string `json:"justification" binding:"required"`
}

// submitAppeal handles POST /v1/accounts/:id/appeals
func (s *Server) submitAppeal(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubmitAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	apl, err := s.engine.SubmitAppeal(ctx, c.Param("id"), req.Justification)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, apl)
}

// getAppeal handles GET /v1/appeals/:id
func (s *Server) getAppeal(c *gin.Context) {
	apl, err := s.engine.GetAppeal(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, apl)
}

// listAccountAppeals handles GET /v1/accounts/:id/appeals
func (s *Server) listAccountAppeals(c *gin.Context) {
	appeals, err := s.engine.ListAccountAppeals(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appeals": appeals, "count": len(appeals)})
}

// -----------------------------------------------------------------------------
// Admin
// -----------------------------------------------------------------------------

// AdminActionRequest carries the operator's reason for a manual transition
type AdminActionRequest struct {
	Reason string `json:"reason"`
}

// freezeAccount handles POST /v1/admin/accounts/:id/freeze
func (s *Server) freezeAccount(c *gin.Context) {
	var req AdminActionRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual freeze"
	}

	acct, err := s.engine.FreezeAccount(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

// blockAccount handles POST /v1/admin/accounts/:id/block
func (s *Server) blockAccount(c *gin.Context) {
	var req AdminActionRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual block"
	}

	acct, err := s.engine.BlockAccount(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

// assessAccount handles POST /v1/admin/accounts/:id/assess
func (s *Server) assessAccount(c *gin.Context) {
	asmt, err := s.engine.AssessAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, asmt)
}

// verifyAccountState handles GET /v1/admin/accounts/:id/verify
func (s *Server) verifyAccountState(c *gin.Context) {
	v, err := s.engine.VerifyAccountState(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// reconcileLedger handles POST /v1/admin/accounts/:id/reconcile
func (s *Server) reconcileLedger(c *gin.Context) {
	match, replayed, stored, err := s.engine.ReconcileLedger(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"match":    match,
		"stored":   stored,
		"replayed": replayed,
	})
}

// runReconciliation handles POST /v1/admin/reconcile. Sweeps every account
// synchronously and returns the drift report.
func (s *Server) runReconciliation(c *gin.Context) {
	report, err := s.reconciler.RunAll(c.Request.Context())
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Alert enriches a flagged transaction with the source account's cached
// risk score for the review queue.
type Alert struct {
	Transaction *transaction.Transaction `json:"transaction"`
	RiskScore   float64                  `json:"riskScore"`
	State       account.State            `json:"accountState"`
}

// listAlerts handles GET /v1/admin/alerts
func (s *Server) listAlerts(c *gin.Context) {
	ctx := c.Request.Context()

	txs, err := s.engine.ListFlaggedTransactions(ctx, limitQuery(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}

	alerts := make([]Alert, 0, len(txs))
	for _, tx := range txs {
		alert := Alert{Transaction: tx}
		if acct, err := s.engine.GetAccount(ctx, tx.SourceAccountID); err == nil {
			alert.RiskScore = acct.RiskScore
			alert.State = acct.State
		}
		alerts = append(alerts, alert)
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// clearFlaggedTransaction handles POST /v1/admin/transactions/:id/clear
func (s *Server) clearFlaggedTransaction(c *gin.Context) {
	tx, err := s.engine.ClearFlaggedTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// listPendingAppeals handles GET /v1/admin/appeals
func (s *Server) listPendingAppeals(c *gin.Context) {
	appeals, err := s.engine.ListPendingAppeals(c.Request.Context(), limitQuery(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appeals": appeals, "count": len(appeals)})
}

// ResolveAppealRequest names the reviewer resolving an appeal
type ResolveAppealRequest struct {
	Reviewer string `json:"reviewer"`
}

// approveAppeal handles POST /v1/admin/appeals/:id/approve
func (s *Server) approveAppeal(c *gin.Context) {
	var req ResolveAppealRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reviewer == "" {
		req.Reviewer = "admin"
	}

	apl, err := s.engine.ApproveAppeal(c.Request.Context(), c.Param("id"), req.Reviewer)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, apl)
}

// rejectAppeal handles POST /v1/admin/appeals/:id/reject
func (s *Server) rejectAppeal(c *gin.Context) {
	var req ResolveAppealRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reviewer == "" {
		req.Reviewer = "admin"
	}

	apl, err := s.engine.RejectAppeal(c.Request.Context(), c.Param("id"), req.Reviewer)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, apl)
}
