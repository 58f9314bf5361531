// Package savings serves per-user perk state backed by the catalog and the
// redemption ledger.
package savings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/insights"
	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultSummaryMonths is the history length used when callers pass zero.
	DefaultSummaryMonths = 6
	// MaxSummaryMonths bounds how far back monthly summaries reach.
	MaxSummaryMonths = 24

	errorOperationSavings = "savings"
	errorSubjectLedger    = "ledger"
	errorSubjectBenefit   = "benefit"
	errorSubjectSummary   = "summary"
	errorCodeWrite        = "write"
	errorCodeRevert       = "revert"
	errorCodeFetch        = "fetch"
	errorCodeUnknown      = "unknown"
	errorCodeCycle        = "cycle"
	errorCodeRange        = "range"
)

var ErrInvalidMonthRange = errors.New("invalid month range")

// CatalogInvalidator drops cached catalog data for a user.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, userID perks.UserID) error
}

// StatusChange is a user request to move a benefit to a new status.
type StatusChange struct {
	UserID         perks.UserID
	CardID         perks.CardID
	BenefitID      perks.BenefitID
	Status         perks.RedemptionStatus
	RemainingValue decimal.Decimal
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the zap logger used for operations and ledger failures.
func WithLogger(logger *zap.Logger) Option {
	return func(service *Service) {
		if logger != nil {
			service.logger = logger
		}
	}
}

// WithMetrics sets the prometheus counters updated by the service.
func WithMetrics(metrics *Metrics) Option {
	return func(service *Service) {
		service.metrics = metrics
	}
}

// WithFirstRedemptionHook sets the hook fired the first time a user redeems.
func WithFirstRedemptionHook(hook perks.FirstRedemptionHook) Option {
	return func(service *Service) {
		service.firstRedemptionHook = hook
	}
}

// Service keeps one tracker per user and persists their status changes.
type Service struct {
	catalog             perks.CatalogSource
	ledger              perks.Ledger
	nowFn               func() time.Time
	logger              *zap.Logger
	metrics             *Metrics
	firstRedemptionHook perks.FirstRedemptionHook

	mutex    sync.Mutex
	trackers map[perks.UserID]*perks.Tracker
}

// NewService wires a Service.
func NewService(catalog perks.CatalogSource, ledger perks.Ledger, now func() time.Time, options ...Option) (*Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog dependency is nil", perks.ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", perks.ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", perks.ErrInvalidServiceConfig)
	}
	service := &Service{
		catalog:  catalog,
		ledger:   ledger,
		nowFn:    now,
		logger:   zap.NewNop(),
		trackers: make(map[perks.UserID]*perks.Tracker),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

func (service *Service) tracker(userID perks.UserID) (*perks.Tracker, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	if tracker, found := service.trackers[userID]; found {
		return tracker, nil
	}
	options := []perks.TrackerOption{perks.WithOperationLogger(NewZapOperationLogger(service.logger))}
	if service.firstRedemptionHook != nil {
		options = append(options, perks.WithFirstRedemptionHook(service.firstRedemptionHook))
	}
	tracker, err := perks.NewTracker(userID, service.catalog, service.ledger, service.nowFn, options...)
	if err != nil {
		return nil, err
	}
	service.trackers[userID] = tracker
	return tracker, nil
}

// Refresh recomputes the user's state from the catalog and the ledger. A
// failed refresh keeps the previous state.
func (service *Service) Refresh(ctx context.Context, userID perks.UserID) (perks.Snapshot, error) {
	tracker, err := service.tracker(userID)
	if err != nil {
		return perks.Snapshot{}, err
	}
	snapshot, err := tracker.Refresh(ctx)
	service.metrics.observeRefresh(err)
	return snapshot, err
}

// Snapshot returns the user's current state, refreshing it on first use.
func (service *Service) Snapshot(ctx context.Context, userID perks.UserID) (perks.Snapshot, error) {
	tracker, err := service.loadedTracker(ctx, userID)
	if err != nil {
		return perks.Snapshot{}, err
	}
	snapshot, _ := tracker.Snapshot()
	return snapshot, nil
}

func (service *Service) loadedTracker(ctx context.Context, userID perks.UserID) (*perks.Tracker, error) {
	tracker, err := service.tracker(userID)
	if err != nil {
		return nil, err
	}
	if _, loaded := tracker.Snapshot(); loaded {
		return tracker, nil
	}
	if _, err := service.Refresh(ctx, userID); err != nil {
		return nil, err
	}
	return tracker, nil
}

// SetStatus applies the change to local state and then persists it. When the
// ledger write fails the local state is not rolled back: the error wraps
// perks.ErrLedgerWrite and the next refresh reconciles.
func (service *Service) SetStatus(ctx context.Context, change StatusChange) (perks.Transition, error) {
	tracker, err := service.loadedTracker(ctx, change.UserID)
	if err != nil {
		return perks.Transition{}, err
	}
	transition, err := tracker.SetStatus(ctx, change.CardID, change.BenefitID, change.Status, change.RemainingValue)
	if err != nil {
		return perks.Transition{}, err
	}
	service.metrics.observeStatusChange(transition.To.String())
	if transition.FirstRedemption {
		service.metrics.observeHook(hookError(transition.Anomalies))
	}

	if err := service.commit(ctx, tracker, change.UserID, transition); err != nil {
		service.metrics.observeLedgerWriteFailure()
		service.logger.Error("ledger write failed after optimistic update",
			zap.String("user_id", change.UserID.String()),
			zap.String("benefit_id", change.BenefitID.String()),
			zap.String("to", transition.To.String()),
			zap.Error(err),
		)
		return transition, err
	}
	return transition, nil
}

func (service *Service) commit(ctx context.Context, tracker *perks.Tracker, userID perks.UserID, transition perks.Transition) error {
	if transition.From == transition.To && transition.PreviousRemaining.Equal(transition.RemainingValue) {
		return nil
	}
	owned, found := tracker.Benefit(transition.BenefitID)
	if !found {
		return perks.WrapError(errorOperationSavings, errorSubjectBenefit, errorCodeUnknown, fmt.Errorf("%w: %s", perks.ErrUnknownBenefit, transition.BenefitID))
	}
	now := service.nowFn()
	if transition.To == perks.StatusAvailable {
		return service.revert(ctx, userID, owned.Benefit, now)
	}

	resetDate, err := perks.NextResetDate(owned.Benefit, owned.AnniversaryDate, now)
	if err != nil {
		return perks.WrapError(errorOperationSavings, errorSubjectLedger, errorCodeWrite, fmt.Errorf("%w: %w", perks.ErrLedgerWrite, err))
	}
	_, err = service.ledger.RecordRedemption(ctx, perks.RedemptionRecord{
		UserID:         userID,
		CardID:         transition.CardID,
		BenefitID:      transition.BenefitID,
		Status:         transition.To,
		ValueRedeemed:  owned.Benefit.Value.Sub(transition.RemainingValue),
		RemainingValue: transition.RemainingValue,
		RedemptionDate: now,
		ResetDate:      &resetDate,
	})
	if err != nil {
		return perks.WrapError(errorOperationSavings, errorSubjectLedger, errorCodeWrite, fmt.Errorf("%w: %w", perks.ErrLedgerWrite, err))
	}
	return nil
}

// revert removes every ledger event that still counts for the benefit in
// the current cycle, so no older event resurfaces on the next refresh.
func (service *Service) revert(ctx context.Context, userID perks.UserID, benefit perks.BenefitDefinition, now time.Time) error {
	events, err := service.ledger.ListRedemptions(ctx, userID)
	if err != nil {
		return perks.WrapError(errorOperationSavings, errorSubjectLedger, errorCodeRevert, fmt.Errorf("%w: %w", perks.ErrLedgerWrite, err))
	}
	var stale []perks.EventID
	for _, event := range events {
		if event.BenefitID != benefit.ID {
			continue
		}
		valid, validErr := perks.IsRedemptionValidForPeriod(event.RedemptionDate, event.ResetDate, benefit.PeriodMonths, now)
		if validErr != nil || !valid {
			continue
		}
		stale = append(stale, event.EventID)
	}
	if err := service.ledger.DeleteRedemptions(ctx, userID, stale); err != nil {
		return perks.WrapError(errorOperationSavings, errorSubjectLedger, errorCodeRevert, fmt.Errorf("%w: %w", perks.ErrLedgerWrite, err))
	}
	return nil
}

// CycleDetails reports when the benefit's current cycle ends.
func (service *Service) CycleDetails(ctx context.Context, userID perks.UserID, benefitID perks.BenefitID) (perks.CycleDetails, error) {
	tracker, err := service.loadedTracker(ctx, userID)
	if err != nil {
		return perks.CycleDetails{}, err
	}
	owned, found := tracker.Benefit(benefitID)
	if !found {
		return perks.CycleDetails{}, perks.WrapError(errorOperationSavings, errorSubjectBenefit, errorCodeUnknown, fmt.Errorf("%w: %s", perks.ErrUnknownBenefit, benefitID))
	}
	details, err := perks.CalculatePerkCycleDetails(owned.Benefit, service.nowFn())
	if err != nil {
		return perks.CycleDetails{}, perks.WrapError(errorOperationSavings, errorSubjectBenefit, errorCodeCycle, err)
	}
	return details, nil
}

// MonthlySummaries derives the last months calendar months from the full
// ledger history, newest first. Zero months selects DefaultSummaryMonths.
func (service *Service) MonthlySummaries(ctx context.Context, userID perks.UserID, months int) ([]insights.MonthlyRedemptionSummary, error) {
	if months == 0 {
		months = DefaultSummaryMonths
	}
	if months < 0 || months > MaxSummaryMonths {
		return nil, perks.WrapError(errorOperationSavings, errorSubjectSummary, errorCodeRange, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidMonthRange, months, MaxSummaryMonths))
	}
	cards, events, err := service.history(ctx, userID)
	if err != nil {
		return nil, err
	}
	return insights.BuildMonthlySummaries(cards, events, service.nowFn(), months), nil
}

// Leaderboard ranks the user's cards by value redeemed this calendar year
// against their annual fee.
func (service *Service) Leaderboard(ctx context.Context, userID perks.UserID) ([]insights.CardROI, error) {
	cards, events, err := service.history(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := service.nowFn()
	summaries := insights.BuildMonthlySummaries(cards, events, now, int(now.Month()))
	return insights.BuildLeaderboard(cards, summaries), nil
}

func (service *Service) history(ctx context.Context, userID perks.UserID) ([]perks.OwnedCard, []perks.RedemptionEvent, error) {
	tracker, err := service.loadedTracker(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	events, err := service.ledger.ListRedemptions(ctx, userID)
	if err != nil {
		return nil, nil, perks.WrapError(errorOperationSavings, errorSubjectLedger, errorCodeFetch, fmt.Errorf("%w: %w", perks.ErrLedgerFetch, err))
	}
	return tracker.Cards(), events, nil
}

// InvalidateCatalog drops cached catalog data for the user, when the catalog
// supports it, and recomputes their state.
func (service *Service) InvalidateCatalog(ctx context.Context, userID perks.UserID) (perks.Snapshot, error) {
	if invalidator, ok := service.catalog.(CatalogInvalidator); ok {
		if err := invalidator.Invalidate(ctx, userID); err != nil {
			service.logger.Warn("catalog invalidation failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	return service.Refresh(ctx, userID)
}

func hookError(anomalies []perks.Anomaly) error {
	for _, anomaly := range anomalies {
		if anomaly.Kind == perks.AnomalyHookFailed {
			return anomaly.Err
		}
	}
	return nil
}
