// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/rfontaine/sentra/internal/account"
	"github.com/rfontaine/sentra/internal/appeal"
	"github.com/rfontaine/sentra/internal/audit"
	"github.com/rfontaine/sentra/internal/auth"
	"github.com/rfontaine/sentra/internal/config"
	"github.com/rfontaine/sentra/internal/detector"
	"github.com/rfontaine/sentra/internal/engine"
	"github.com/rfontaine/sentra/internal/health"
	"github.com/rfontaine/sentra/internal/ledger"
	"github.com/rfontaine/sentra/internal/logging"
	"github.com/rfontaine/sentra/internal/metrics"
	"github.com/rfontaine/sentra/internal/ratelimit"
	"github.com/rfontaine/sentra/internal/realtime"
	"github.com/rfontaine/sentra/internal/reconciliation"
	"github.com/rfontaine/sentra/internal/retry"
	"github.com/rfontaine/sentra/internal/risk"
	"github.com/rfontaine/sentra/internal/scoring"
	"github.com/rfontaine/sentra/internal/security"
	"github.com/rfontaine/sentra/internal/transaction"
	"github.com/rfontaine/sentra/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	engine       *engine.Engine
	scorer       scoring.Scorer
	reconciler   *reconciliation.Runner
	sweepTimer   *reconciliation.Timer
	hub          *realtime.Hub
	healthReg    *health.Registry
	rateLimiter  *ratelimit.Limiter
	rateLimitCfg *ratelimit.Config
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScorer sets a custom scorer (for testing)
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Server) {
		s.scorer = sc
	}
}

// WithRateLimit overrides the default per-IP rate limit
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		s.rateLimitCfg = &cfg
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	// Apply options first (may set logger/scorer)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var stores engine.Stores
	var led *ledger.Ledger
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// The database may still be coming up alongside us
		if err := retry.Do(ctx, 5, 500*time.Millisecond, db.Ping); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		accountStore := account.NewPostgresStore(db)
		if err := accountStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate account store", "error", err)
		}
		txStore := transaction.NewPostgresStore(db)
		if err := txStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate transaction store", "error", err)
		}
		riskStore := risk.NewPostgresStore(db)
		if err := riskStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate risk store", "error", err)
		}
		appealStore := appeal.NewPostgresStore(db)
		if err := appealStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate appeal store", "error", err)
		}
		auditStore := audit.NewPostgresStore(db)
		if err := auditStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate audit store", "error", err)
		}
		ledgerStore := ledger.NewPostgresStore(db)
		if err := ledgerStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate ledger store", "error", err)
		}

		stores = engine.Stores{
			Accounts:     accountStore,
			Transactions: txStore,
			Assessments:  riskStore,
			Appeals:      appealStore,
			Audit:        auditStore,
		}
		led = ledger.New(ledgerStore)

		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})

		metrics.StartDBStatsCollector(ctx, db, 15*time.Second)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		stores = engine.Stores{
			Accounts:     account.NewMemoryStore(),
			Transactions: transaction.NewMemoryStore(),
			Assessments:  risk.NewMemoryStore(),
			Appeals:      appeal.NewMemoryStore(),
			Audit:        audit.NewMemoryStore(),
		}
		led = ledger.New(ledger.NewMemoryStore())
	}

	// Typology detectors run under a shared wall-clock budget
	detectors := []detector.Detector{
		detector.NewStructuring(cfg.StructuringThreshold, cfg.StructuringBand),
		detector.NewSmurfing(cfg.StructuringThreshold, cfg.SmurfingSmallAmount, cfg.SmurfingWindow),
		detector.NewCircularFlow(cfg.CircularWindow, cfg.CircularMaxDepth),
		detector.NewHighVelocity(cfg.VelocityLimit, cfg.VelocityWindow),
	}
	runner := detector.NewRunner(detectors, cfg.DetectorBudget, s.logger)

	// External ML scoring collaborator (rule-only when not configured)
	if s.scorer == nil {
		if cfg.ScoringURL != "" {
			// Operators can point at localhost in development only
			if cfg.IsProduction() {
				if err := security.ValidateEndpointURL(cfg.ScoringURL); err != nil {
					return nil, fmt.Errorf("invalid scoring URL: %w", err)
				}
			}
			s.scorer = scoring.NewHTTPScorer(cfg.ScoringURL, cfg.ScoringTimeout)
			s.logger.Info("ML scoring enabled", "url", cfg.ScoringURL, "timeout", cfg.ScoringTimeout)
		} else {
			s.logger.Info("no scoring URL configured, aggregation is rule-only")
		}
	}

	// Realtime hub for WebSocket alert streaming
	s.hub = realtime.NewHub(s.logger)
	s.logger.Info("realtime alert streaming enabled")

	s.engine = engine.New(cfg, stores, led, runner, s.scorer, s.hub, s.logger)

	// Background consistency sweep over the whole book
	s.reconciler = reconciliation.NewRunner(s.engine, s.logger)
	s.sweepTimer = reconciliation.NewTimer(s.reconciler, cfg.ReconcileInterval, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.rateLimitCfg != nil {
		rlCfg = *s.rateLimitCfg
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time alert streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})

	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	// Accounts
	v1.POST("/accounts", s.createAccount)
	v1.GET("/accounts", s.listAccounts)
	v1.GET("/accounts/high-risk", s.listHighRiskAccounts)
	v1.GET("/accounts/:id", s.getAccount)
	v1.GET("/accounts/:id/balance", s.getBalance)
	v1.GET("/accounts/:id/ledger", s.getLedgerHistory)
	v1.GET("/accounts/:id/transactions", s.listAccountTransactions)
	v1.GET("/accounts/:id/assessments", s.listAssessments)
	v1.GET("/accounts/:id/audit", s.getAuditLog)
	v1.GET("/accounts/:id/report", s.getAccountReport)
	v1.GET("/accounts/:id/appeals", s.listAccountAppeals)
	v1.POST("/accounts/:id/appeals", s.submitAppeal)

	// Transactions
	v1.POST("/transactions", s.evaluateTransaction)
	v1.GET("/transactions/:id", s.getTransaction)
	v1.GET("/transactions/:id/explain", s.explainTransaction)

	// Appeals
	v1.GET("/appeals/:id", s.getAppeal)

	// ADMIN ROUTES (require X-Admin-Secret)
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	{
		admin.POST("/accounts/:id/freeze", s.freezeAccount)
		admin.POST("/accounts/:id/block", s.blockAccount)
		admin.POST("/accounts/:id/assess", s.assessAccount)
		admin.GET("/accounts/:id/verify", s.verifyAccountState)
		admin.POST("/accounts/:id/reconcile", s.reconcileLedger)
		admin.POST("/reconcile", s.runReconciliation)
		admin.GET("/alerts", s.listAlerts)
		admin.POST("/transactions/:id/clear", s.clearFlaggedTransaction)
		admin.GET("/appeals", s.listPendingAppeals)
		admin.POST("/appeals/:id/approve", s.approveAppeal)
		admin.POST("/appeals/:id/reject", s.rejectAppeal)
	}
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse is the /health payload
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Sentra",
		"description": "Real-time AML transaction screening",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Periodic consistency sweep
	if s.cfg.ReconcileInterval > 0 {
		go s.sweepTimer.Start(runCtx)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines (hub)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
