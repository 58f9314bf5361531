package perks

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var referenceNow = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

type stubCatalog struct {
	cards []OwnedCard
	err   error
	calls int
}

func (catalog *stubCatalog) ListOwnedCards(_ context.Context, _ UserID) ([]OwnedCard, error) {
	catalog.calls++
	if catalog.err != nil {
		return nil, catalog.err
	}
	return append([]OwnedCard(nil), catalog.cards...), nil
}

type stubLedger struct {
	events []RedemptionEvent
	err    error
}

func (ledger *stubLedger) ListRedemptions(_ context.Context, _ UserID) ([]RedemptionEvent, error) {
	if ledger.err != nil {
		return nil, ledger.err
	}
	return append([]RedemptionEvent(nil), ledger.events...), nil
}

type milestoneLedger struct {
	stubLedger
	redeemed bool
	marks    int
	markErr  error
}

func (ledger *milestoneLedger) HasRedeemed(context.Context, UserID) (bool, error) {
	return ledger.redeemed, nil
}

func (ledger *milestoneLedger) MarkRedeemed(context.Context, UserID, time.Time) error {
	ledger.marks++
	if ledger.markErr != nil {
		return ledger.markErr
	}
	ledger.redeemed = true
	return nil
}

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustCardID(test *testing.T, raw string) CardID {
	test.Helper()
	value, err := NewCardID(raw)
	if err != nil {
		test.Fatalf("card id: %v", err)
	}
	return value
}

func mustBenefitID(test *testing.T, raw string) BenefitID {
	test.Helper()
	value, err := NewBenefitID(raw)
	if err != nil {
		test.Fatalf("benefit id: %v", err)
	}
	return value
}

func mustEventID(test *testing.T, raw string) EventID {
	test.Helper()
	value, err := NewEventID(raw)
	if err != nil {
		test.Fatalf("event id: %v", err)
	}
	return value
}

func mustMoney(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := NewMoney(raw)
	if err != nil {
		test.Fatalf("money: %v", err)
	}
	return value
}

func newBenefit(test *testing.T, id string, value string, period PeriodMonths) BenefitDefinition {
	test.Helper()
	return BenefitDefinition{
		ID:           mustBenefitID(test, id),
		Name:         id,
		Value:        mustMoney(test, value),
		PeriodMonths: period,
		ResetType:    ResetCalendar,
	}
}

func newOwnedCard(test *testing.T, id string, fee string, benefits ...BenefitDefinition) OwnedCard {
	test.Helper()
	return OwnedCard{
		Card:     Card{ID: mustCardID(test, id), Name: id, AnnualFee: mustMoney(test, fee)},
		Benefits: benefits,
	}
}

func newEvent(test *testing.T, id string, benefitID string, redeemedAt time.Time, resetDate *time.Time, status RedemptionStatus, redeemed string, remaining string) RedemptionEvent {
	test.Helper()
	event, err := NewRedemptionEvent(mustEventID(test, id), mustBenefitID(test, benefitID), redeemedAt, resetDate, status, mustMoney(test, redeemed), mustMoney(test, remaining))
	if err != nil {
		test.Fatalf("event: %v", err)
	}
	return event
}

func timePointer(value time.Time) *time.Time {
	return &value
}

func mustNewTracker(test *testing.T, catalog CatalogSource, ledger LedgerReader, options ...TrackerOption) *Tracker {
	test.Helper()
	tracker, err := NewTracker(mustUserID(test, "user-1"), catalog, ledger, fixedClock(referenceNow), options...)
	if err != nil {
		test.Fatalf("new tracker: %v", err)
	}
	return tracker
}

func mustRefresh(test *testing.T, tracker *Tracker) Snapshot {
	test.Helper()
	snapshot, err := tracker.Refresh(context.Background())
	if err != nil {
		test.Fatalf("refresh: %v", err)
	}
	return snapshot
}

func assertMoney(test *testing.T, label string, want string, got decimal.Decimal) {
	test.Helper()
	expected := decimal.RequireFromString(want)
	if !got.Equal(expected) {
		test.Fatalf("%s: expected %s, got %s", label, expected, got)
	}
}
