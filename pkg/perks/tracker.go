package perks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Tracker owns the derived redemption state of a single user. Refresh
// recomputes it wholesale from the catalog and the ledger; SetStatus nudges it
// optimistically between refreshes. A refresh that completes after a
// concurrent SetStatus replaces the optimistic state: the next refresh after
// the backing ledger write lands reconciles it.
type Tracker struct {
	userID              UserID
	catalog             CatalogSource
	ledger              LedgerReader
	milestones          RedemptionMilestones
	nowFn               func() time.Time
	logger              OperationLogger
	firstRedemptionHook FirstRedemptionHook

	mutex       sync.Mutex
	loaded      bool
	snapshot    Snapshot
	cards       []OwnedCard
	benefits    map[BenefitID]OwnedBenefit
	hasRedeemed bool
}

// Transition reports what a SetStatus call changed.
type Transition struct {
	CardID            CardID
	BenefitID         BenefitID
	PeriodMonths      PeriodMonths
	From              RedemptionStatus
	To                RedemptionStatus
	PreviousRemaining decimal.Decimal
	RemainingValue    decimal.Decimal
	Delta             decimal.Decimal
	FirstRedemption   bool
	Anomalies         []Anomaly
}

// NewTracker wires a Tracker for one user.
func NewTracker(userID UserID, catalog CatalogSource, ledger LedgerReader, now func() time.Time, options ...TrackerOption) (*Tracker, error) {
	if userID.value == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidServiceConfig)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	tracker := &Tracker{
		userID:   userID,
		catalog:  catalog,
		ledger:   ledger,
		nowFn:    now,
		benefits: make(map[BenefitID]OwnedBenefit),
	}
	if milestones, ok := ledger.(RedemptionMilestones); ok {
		tracker.milestones = milestones
	}
	for _, option := range options {
		if option != nil {
			option(tracker)
		}
	}
	return tracker, nil
}

// UserID returns the user this tracker belongs to.
func (tracker *Tracker) UserID() UserID {
	return tracker.userID
}

// Refresh fetches the catalog and the ledger concurrently and replaces the
// derived state. On failure the previous state is kept untouched.
func (tracker *Tracker) Refresh(ctx context.Context) (Snapshot, error) {
	var (
		cards  []OwnedCard
		events []RedemptionEvent
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		fetched, err := tracker.catalog.ListOwnedCards(groupCtx, tracker.userID)
		if err != nil {
			return WrapError(errorOperationTracker, errorSubjectCatalog, errorCodeFetch, fmt.Errorf("%w: %w", ErrCatalogFetch, err))
		}
		cards = fetched
		return nil
	})
	group.Go(func() error {
		fetched, err := tracker.ledger.ListRedemptions(groupCtx, tracker.userID)
		if err != nil {
			return WrapError(errorOperationTracker, errorSubjectLedger, errorCodeFetch, fmt.Errorf("%w: %w", ErrLedgerFetch, err))
		}
		events = fetched
		return nil
	})
	everRedeemed := false
	if tracker.milestones != nil {
		group.Go(func() error {
			redeemed, err := tracker.milestones.HasRedeemed(groupCtx, tracker.userID)
			if err != nil {
				return WrapError(errorOperationTracker, errorSubjectLedger, errorCodeFetch, fmt.Errorf("%w: %w", ErrLedgerFetch, err))
			}
			everRedeemed = redeemed
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		tracker.logOperation(ctx, OperationLog{Operation: operationRefresh, UserID: tracker.userID, Error: err})
		return Snapshot{}, err
	}

	owned := OwnedBenefits(cards)
	snapshot := BuildSnapshot(owned, events, tracker.nowFn())
	index := make(map[BenefitID]OwnedBenefit, len(owned))
	for _, benefit := range owned {
		index[benefit.Benefit.ID] = benefit
	}

	tracker.mutex.Lock()
	tracker.snapshot = snapshot
	tracker.cards = cards
	tracker.benefits = index
	tracker.loaded = true
	if len(events) > 0 || everRedeemed {
		tracker.hasRedeemed = true
	}
	result := snapshot.Clone()
	tracker.mutex.Unlock()

	tracker.logOperation(ctx, OperationLog{Operation: operationRefresh, UserID: tracker.userID, Anomalies: snapshot.Anomalies})
	return result, nil
}

// Snapshot returns a copy of the current state and whether a refresh has
// ever completed.
func (tracker *Tracker) Snapshot() (Snapshot, bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	if !tracker.loaded {
		return Snapshot{}, false
	}
	return tracker.snapshot.Clone(), true
}

// Cards returns the owned cards seen by the last successful refresh.
func (tracker *Tracker) Cards() []OwnedCard {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	return append([]OwnedCard(nil), tracker.cards...)
}

// Benefit looks up an owned benefit seen by the last successful refresh.
func (tracker *Tracker) Benefit(benefitID BenefitID) (OwnedBenefit, bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	benefit, ok := tracker.benefits[benefitID]
	return benefit, ok
}

// SetStatus applies a user status change to the local state immediately.
// The delta credited to the card and period totals is the difference between
// what the new and the old status count as saved, so a later refresh over
// the equivalent ledger computes the same numbers. A partial redemption with
// nothing remaining is recorded as a full redemption.
func (tracker *Tracker) SetStatus(ctx context.Context, cardID CardID, benefitID BenefitID, newStatus RedemptionStatus, remainingValue decimal.Decimal) (Transition, error) {
	transition, first, err := tracker.applyStatus(cardID, benefitID, newStatus, remainingValue)
	if err != nil {
		tracker.logOperation(ctx, OperationLog{
			Operation: operationSetStatus,
			UserID:    tracker.userID,
			CardID:    cardID,
			BenefitID: benefitID,
			To:        newStatus,
			Error:     err,
		})
		return Transition{}, err
	}
	if first && tracker.milestones != nil {
		if markErr := tracker.milestones.MarkRedeemed(ctx, tracker.userID, tracker.nowFn()); markErr != nil {
			transition.Anomalies = append(transition.Anomalies, Anomaly{
				Kind:      AnomalyMilestoneFailed,
				BenefitID: benefitID,
				Err:       markErr,
			})
		}
	}
	if first && tracker.firstRedemptionHook != nil {
		transition.FirstRedemption = true
		if hookErr := tracker.notifyFirstRedemption(ctx); hookErr != nil {
			transition.Anomalies = append(transition.Anomalies, Anomaly{
				Kind:      AnomalyHookFailed,
				BenefitID: benefitID,
				Err:       hookErr,
			})
		}
	}
	tracker.logOperation(ctx, OperationLog{
		Operation: operationSetStatus,
		UserID:    tracker.userID,
		CardID:    cardID,
		BenefitID: benefitID,
		From:      transition.From,
		To:        transition.To,
		Delta:     transition.Delta,
		Anomalies: transition.Anomalies,
	})
	return transition, nil
}

func (tracker *Tracker) applyStatus(cardID CardID, benefitID BenefitID, newStatus RedemptionStatus, remainingValue decimal.Decimal) (Transition, bool, error) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	owned, ok := tracker.benefits[benefitID]
	if !ok {
		return Transition{}, false, WrapError(errorOperationTracker, errorSubjectBenefit, errorCodeUnknown, fmt.Errorf("%w: %s", ErrUnknownBenefit, benefitID))
	}
	if owned.CardID != cardID {
		return Transition{}, false, WrapError(errorOperationTracker, errorSubjectBenefit, errorCodeCardMismatch, fmt.Errorf("%w: %s is not on %s", ErrCardMismatch, benefitID, cardID))
	}
	benefit := owned.Benefit
	if !benefit.PeriodMonths.IsSet() {
		return Transition{}, false, WrapError(errorOperationTracker, errorSubjectBenefit, errorCodeMissingCycle, fmt.Errorf("%w: %s", ErrMissingPeriod, benefitID))
	}

	newRemaining := decimal.Zero
	switch newStatus {
	case StatusAvailable, StatusRedeemed:
	case StatusPartiallyRedeemed:
		if remainingValue.IsNegative() || remainingValue.GreaterThanOrEqual(benefit.Value) {
			return Transition{}, false, fmt.Errorf("%w: %s must be within [0, %s)", ErrInvalidRemainingValue, remainingValue, benefit.Value)
		}
		if remainingValue.IsZero() {
			newStatus = StatusRedeemed
		} else {
			newRemaining = remainingValue
		}
	default:
		return Transition{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	current, exists := tracker.snapshot.Statuses[benefitID]
	if !exists {
		current = BenefitStatus{BenefitID: benefitID, CardID: cardID, Status: StatusAvailable, RemainingValue: decimal.Zero}
	}
	oldCredit := creditedValue(benefit.Value, current.Status, current.RemainingValue)
	newCredit := creditedValue(benefit.Value, newStatus, newRemaining)
	delta := newCredit.Sub(oldCredit)

	transition := Transition{
		CardID:            cardID,
		BenefitID:         benefitID,
		PeriodMonths:      benefit.PeriodMonths,
		From:              current.Status,
		To:                newStatus,
		PreviousRemaining: current.RemainingValue,
		RemainingValue:    newRemaining,
		Delta:             delta,
	}

	cardSaved, clamped := clampAtZero(tracker.snapshot.CardSavings[cardID].Add(delta))
	if clamped {
		transition.Anomalies = append(transition.Anomalies, clampAnomaly(benefitID, "card savings"))
	}
	tracker.snapshot.CardSavings[cardID] = cardSaved

	aggregate := tracker.snapshot.Periods[benefit.PeriodMonths]
	aggregate.RedeemedValue, clamped = clampAtZero(aggregate.RedeemedValue.Add(delta))
	if clamped {
		transition.Anomalies = append(transition.Anomalies, clampAnomaly(benefitID, "period redeemed value"))
	}
	if current.Status != newStatus {
		switch current.Status {
		case StatusRedeemed:
			aggregate.RedeemedCount, clamped = decrementAtZero(aggregate.RedeemedCount)
		case StatusPartiallyRedeemed:
			aggregate.PartiallyRedeemedCount, clamped = decrementAtZero(aggregate.PartiallyRedeemedCount)
		case StatusAvailable:
			clamped = false
		}
		if clamped {
			transition.Anomalies = append(transition.Anomalies, clampAnomaly(benefitID, "period count"))
		}
		switch newStatus {
		case StatusRedeemed:
			aggregate.RedeemedCount++
		case StatusPartiallyRedeemed:
			aggregate.PartiallyRedeemedCount++
		case StatusAvailable:
		}
	}
	tracker.snapshot.Periods[benefit.PeriodMonths] = aggregate

	tracker.snapshot.Statuses[benefitID] = BenefitStatus{
		BenefitID:      benefitID,
		CardID:         cardID,
		Status:         newStatus,
		RemainingValue: newRemaining,
	}

	first := false
	if newStatus != StatusAvailable && current.Status == StatusAvailable && !tracker.hasRedeemed {
		tracker.hasRedeemed = true
		first = true
	}
	return transition, first, nil
}

func (tracker *Tracker) notifyFirstRedemption(ctx context.Context) (hookErr error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			hookErr = fmt.Errorf("first redemption hook panicked: %v", recovered)
		}
	}()
	return tracker.firstRedemptionHook(ctx, tracker.userID)
}

func (tracker *Tracker) logOperation(ctx context.Context, entry OperationLog) {
	if tracker.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	tracker.logger.LogOperation(ctx, entry)
}

func clampAtZero(value decimal.Decimal) (decimal.Decimal, bool) {
	if value.IsNegative() {
		return decimal.Zero, true
	}
	return value, false
}

func decrementAtZero(count int) (int, bool) {
	if count <= 0 {
		return 0, true
	}
	return count - 1, false
}

func clampAnomaly(benefitID BenefitID, target string) Anomaly {
	return Anomaly{
		Kind:      AnomalyClamped,
		BenefitID: benefitID,
		Err:       fmt.Errorf("%s for %s would go negative; clamped to zero", target, benefitID),
	}
}
