// Package httpapi exposes perk state, status changes and monthly insights
// over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/internal/savings"
	"github.com/MarkoPoloResearchLab/perkledger/pkg/insights"
	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// SavingsService is the application surface the handlers drive.
type SavingsService interface {
	Snapshot(ctx context.Context, userID perks.UserID) (perks.Snapshot, error)
	Refresh(ctx context.Context, userID perks.UserID) (perks.Snapshot, error)
	InvalidateCatalog(ctx context.Context, userID perks.UserID) (perks.Snapshot, error)
	SetStatus(ctx context.Context, change savings.StatusChange) (perks.Transition, error)
	CycleDetails(ctx context.Context, userID perks.UserID, benefitID perks.BenefitID) (perks.CycleDetails, error)
	MonthlySummaries(ctx context.Context, userID perks.UserID, months int) ([]insights.MonthlyRedemptionSummary, error)
	Leaderboard(ctx context.Context, userID perks.UserID) ([]insights.CardROI, error)
}

// Option configures the router.
type Option func(*httpHandler)

// WithLogger sets the zap logger used for request failures.
func WithLogger(logger *zap.Logger) Option {
	return func(handler *httpHandler) {
		if logger != nil {
			handler.logger = logger
		}
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(handler *httpHandler) {
		if gatherer != nil {
			handler.gatherer = gatherer
		}
	}
}

// WithClock sets the clock used to tell the current month apart.
func WithClock(now func() time.Time) Option {
	return func(handler *httpHandler) {
		if now != nil {
			handler.nowFn = now
		}
	}
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, service SavingsService, options ...Option) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if service == nil {
		return fmt.Errorf("%w: savings service is nil", perks.ErrInvalidServiceConfig)
	}
	handler := newHTTPHandler(cfg, service, options...)
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		handler.logger.Info("perks api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			handler.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine serving the API.
func NewRouter(cfg Config, service SavingsService, options ...Option) (*gin.Engine, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: savings service is nil", perks.ErrInvalidServiceConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("http config: %w", err)
	}
	handler := newHTTPHandler(cfg, service, options...)
	return setupRouter(cfg, handler), nil
}

func newHTTPHandler(cfg Config, service SavingsService, options ...Option) *httpHandler {
	handler := &httpHandler{
		logger:   zap.NewNop(),
		service:  service,
		cfg:      cfg,
		gatherer: prometheus.DefaultGatherer,
		nowFn:    time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(handler)
		}
	}
	return handler
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(handler.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.Use(bearerAuth(cfg))

	api.GET("/savings", handler.handleSavings)
	api.POST("/savings/refresh", handler.handleRefresh)
	api.POST("/catalog/invalidate", handler.handleInvalidate)
	api.PUT("/cards/:card_id/benefits/:benefit_id/status", handler.handleSetStatus)
	api.GET("/benefits/:benefit_id/cycle", handler.handleCycle)
	api.GET("/insights/months", handler.handleMonths)
	api.GET("/insights/roi", handler.handleROI)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	service  SavingsService
	cfg      Config
	gatherer prometheus.Gatherer
	nowFn    func() time.Time
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) handleSavings(ctx *gin.Context) {
	handler.respondWithSnapshot(ctx, handler.service.Snapshot)
}

func (handler *httpHandler) handleRefresh(ctx *gin.Context) {
	handler.respondWithSnapshot(ctx, handler.service.Refresh)
}

func (handler *httpHandler) handleInvalidate(ctx *gin.Context) {
	handler.respondWithSnapshot(ctx, handler.service.InvalidateCatalog)
}

func (handler *httpHandler) respondWithSnapshot(ctx *gin.Context, load func(context.Context, perks.UserID) (perks.Snapshot, error)) {
	userID, ok := getUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing user"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	snapshot, err := load(requestCtx, userID)
	if err != nil {
		handler.respondWithError(ctx, "snapshot failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"savings": newSnapshotResponse(snapshot)})
}

func (handler *httpHandler) handleSetStatus(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing user"))
		return
	}
	cardID, err := perks.NewCardID(ctx.Param("card_id"))
	if err != nil {
		handler.respondWithError(ctx, "invalid card", err)
		return
	}
	benefitID, err := perks.NewBenefitID(ctx.Param("benefit_id"))
	if err != nil {
		handler.respondWithError(ctx, "invalid benefit", err)
		return
	}
	var request statusRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	status, err := perks.ParseRedemptionStatus(request.Status)
	if err != nil {
		handler.respondWithError(ctx, "invalid status", err)
		return
	}
	remaining := decimal.Zero
	if request.RemainingValue != nil {
		remaining = *request.RemainingValue
	} else if status == perks.StatusPartiallyRedeemed {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "remaining_value is required for partially_redeemed"))
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transition, err := handler.service.SetStatus(requestCtx, savings.StatusChange{
		UserID:         userID,
		CardID:         cardID,
		BenefitID:      benefitID,
		Status:         status,
		RemainingValue: remaining,
	})
	if err != nil {
		if errors.Is(err, perks.ErrLedgerWrite) {
			code, body := mapToHTTPError(err)
			body["transition"] = newTransitionPayload(transition)
			ctx.JSON(code, body)
			return
		}
		handler.respondWithError(ctx, "status change failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transition": newTransitionPayload(transition)})
}

func (handler *httpHandler) handleCycle(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing user"))
		return
	}
	benefitID, err := perks.NewBenefitID(ctx.Param("benefit_id"))
	if err != nil {
		handler.respondWithError(ctx, "invalid benefit", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	details, err := handler.service.CycleDetails(requestCtx, userID, benefitID)
	if err != nil {
		handler.respondWithError(ctx, "cycle details failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"cycle": cyclePayload{
		BenefitID:     benefitID.String(),
		CycleEndDate:  details.CycleEndDate,
		DaysRemaining: details.DaysRemaining,
	}})
}

func (handler *httpHandler) handleMonths(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing user"))
		return
	}
	months := 0
	if raw := ctx.Query("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_months", "months must be an integer"))
			return
		}
		months = parsed
	}
	onlyRelevant := false
	if raw := ctx.Query("only_relevant"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_only_relevant", "only_relevant must be a boolean"))
			return
		}
		onlyRelevant = parsed
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	summaries, err := handler.service.MonthlySummaries(requestCtx, userID, months)
	if err != nil {
		handler.respondWithError(ctx, "monthly summaries failed", err)
		return
	}
	now := handler.nowFn()
	payloads := make([]monthPayload, 0, len(summaries))
	for _, summary := range summaries {
		payloads = append(payloads, newMonthPayload(summary, onlyRelevant, now))
	}
	ctx.JSON(http.StatusOK, gin.H{"months": payloads})
}

func (handler *httpHandler) handleROI(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing user"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.service.Leaderboard(requestCtx, userID)
	if err != nil {
		handler.respondWithError(ctx, "leaderboard failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"cards": newROIPayloads(entries)})
}

func (handler *httpHandler) respondWithError(ctx *gin.Context, message string, err error) {
	code, body := mapToHTTPError(err)
	if code >= http.StatusInternalServerError {
		handler.logger.Error(message, zap.Error(err))
	}
	ctx.JSON(code, body)
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
