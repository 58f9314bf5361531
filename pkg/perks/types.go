package perks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UserID identifies an account owner.
type UserID struct {
	value string
}

// CardID identifies a credit card in the catalog.
type CardID struct {
	value string
}

// BenefitID identifies a benefit definition (perk) in the catalog.
type BenefitID struct {
	value string
}

// EventID identifies a single redemption row in the ledger.
type EventID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewCardID validates and normalizes a card id.
func NewCardID(raw string) (CardID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CardID{}, fmt.Errorf("%w: empty value", ErrInvalidCardID)
	}
	return CardID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CardID) String() string {
	return id.value
}

// MarshalText lets CardID key JSON maps.
func (id CardID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// NewBenefitID validates and normalizes a benefit id.
func NewBenefitID(raw string) (BenefitID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BenefitID{}, fmt.Errorf("%w: empty value", ErrInvalidBenefitID)
	}
	return BenefitID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BenefitID) String() string {
	return id.value
}

// MarshalText lets BenefitID key JSON maps.
func (id BenefitID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// NewEventID validates and normalizes a ledger event id.
func NewEventID(raw string) (EventID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EventID{}, fmt.Errorf("%w: empty value", ErrInvalidEventID)
	}
	return EventID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EventID) String() string {
	return id.value
}

// NewMoney parses a non-negative decimal currency amount.
func NewMoney(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidMoney, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: must not be negative", ErrInvalidMoney)
	}
	return amount, nil
}

// PeriodMonths is the length of a benefit's accounting cycle. Zero means the
// catalog did not supply one.
type PeriodMonths int

const (
	PeriodUnset      PeriodMonths = 0
	PeriodMonthly    PeriodMonths = 1
	PeriodQuarterly  PeriodMonths = 3
	PeriodSemiAnnual PeriodMonths = 6
	PeriodAnnual     PeriodMonths = 12
)

// NewPeriodMonths validates a raw period length. Any non-negative value is
// accepted here; the cycle resolver decides which ones it can anchor.
func NewPeriodMonths(raw int) (PeriodMonths, error) {
	if raw < 0 {
		return PeriodUnset, fmt.Errorf("%w: %d", ErrInvalidPeriod, raw)
	}
	return PeriodMonths(raw), nil
}

// IsSet reports whether the catalog supplied a period.
func (period PeriodMonths) IsSet() bool {
	return period > 0
}

// Recognized reports whether the period has a calendar anchoring.
func (period PeriodMonths) Recognized() bool {
	switch period {
	case PeriodMonthly, PeriodQuarterly, PeriodSemiAnnual, PeriodAnnual:
		return true
	default:
		return false
	}
}

// Int returns the number of months.
func (period PeriodMonths) Int() int {
	return int(period)
}

// String returns the display name of the period.
func (period PeriodMonths) String() string {
	switch period {
	case PeriodMonthly:
		return "monthly"
	case PeriodQuarterly:
		return "quarterly"
	case PeriodSemiAnnual:
		return "semi_annual"
	case PeriodAnnual:
		return "annual"
	case PeriodUnset:
		return "unset"
	default:
		return fmt.Sprintf("%d_months", int(period))
	}
}

// ResetType controls how a benefit's cycle is anchored.
type ResetType string

const (
	ResetCalendar    ResetType = "calendar"
	ResetAnniversary ResetType = "anniversary"
)

// ParseResetType validates a reset type, defaulting empty values to calendar.
func ParseResetType(raw string) (ResetType, error) {
	switch ResetType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ResetCalendar:
		return ResetCalendar, nil
	case ResetAnniversary:
		return ResetAnniversary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidResetType, raw)
	}
}

// String returns the stored representation.
func (resetType ResetType) String() string {
	return string(resetType)
}

// RedemptionStatus is the closed set of states a benefit can be in.
type RedemptionStatus string

const (
	StatusAvailable         RedemptionStatus = "available"
	StatusRedeemed          RedemptionStatus = "redeemed"
	StatusPartiallyRedeemed RedemptionStatus = "partially_redeemed"
)

// ParseRedemptionStatus validates a status string.
func ParseRedemptionStatus(raw string) (RedemptionStatus, error) {
	switch status := RedemptionStatus(strings.TrimSpace(raw)); status {
	case StatusAvailable, StatusRedeemed, StatusPartiallyRedeemed:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// String returns the stored representation.
func (status RedemptionStatus) String() string {
	return string(status)
}

// Card is catalog reference data for a credit card.
type Card struct {
	ID        CardID
	Name      string
	AnnualFee decimal.Decimal
}

// BenefitDefinition is immutable catalog reference data for a perk.
type BenefitDefinition struct {
	ID           BenefitID
	Name         string
	Value        decimal.Decimal
	PeriodMonths PeriodMonths
	ResetType    ResetType
	Categories   []string
}

// OwnedCard is a card held by a user together with its benefits.
type OwnedCard struct {
	Card            Card
	AnniversaryDate *time.Time
	Benefits        []BenefitDefinition
}

// OwnedBenefit is a single benefit flattened out of an OwnedCard.
type OwnedBenefit struct {
	CardID          CardID
	AnniversaryDate *time.Time
	Benefit         BenefitDefinition
}

// OwnedBenefits flattens the user's cards into one benefit list, preserving order.
func OwnedBenefits(cards []OwnedCard) []OwnedBenefit {
	benefits := make([]OwnedBenefit, 0, len(cards))
	for _, card := range cards {
		for _, benefit := range card.Benefits {
			benefits = append(benefits, OwnedBenefit{
				CardID:          card.Card.ID,
				AnniversaryDate: card.AnniversaryDate,
				Benefit:         benefit,
			})
		}
	}
	return benefits
}

// RedemptionEvent is one row of the redemption ledger.
type RedemptionEvent struct {
	EventID        EventID
	BenefitID      BenefitID
	RedemptionDate time.Time
	ResetDate      *time.Time
	Status         RedemptionStatus
	ValueRedeemed  decimal.Decimal
	RemainingValue decimal.Decimal
}

// NewRedemptionEvent validates a ledger row. Ledger rows never carry the
// available status; availability is the absence of a valid row.
func NewRedemptionEvent(eventID EventID, benefitID BenefitID, redemptionDate time.Time, resetDate *time.Time, status RedemptionStatus, valueRedeemed decimal.Decimal, remainingValue decimal.Decimal) (RedemptionEvent, error) {
	if eventID.value == "" {
		return RedemptionEvent{}, fmt.Errorf("%w: empty value", ErrInvalidEventID)
	}
	if benefitID.value == "" {
		return RedemptionEvent{}, fmt.Errorf("%w: empty value", ErrInvalidBenefitID)
	}
	if status != StatusRedeemed && status != StatusPartiallyRedeemed {
		return RedemptionEvent{}, fmt.Errorf("%w: ledger rows must be redeemed or partially_redeemed", ErrInvalidStatus)
	}
	if valueRedeemed.IsNegative() || remainingValue.IsNegative() {
		return RedemptionEvent{}, fmt.Errorf("%w: negative event value", ErrInvalidMoney)
	}
	return RedemptionEvent{
		EventID:        eventID,
		BenefitID:      benefitID,
		RedemptionDate: redemptionDate,
		ResetDate:      resetDate,
		Status:         status,
		ValueRedeemed:  valueRedeemed,
		RemainingValue: remainingValue,
	}, nil
}

// RedemptionRecord is the payload written to the ledger on commit.
type RedemptionRecord struct {
	UserID         UserID
	CardID         CardID
	BenefitID      BenefitID
	Status         RedemptionStatus
	ValueRedeemed  decimal.Decimal
	RemainingValue decimal.Decimal
	RedemptionDate time.Time
	ResetDate      *time.Time
}

// SameOutcome reports whether a stored event carries the status and amounts
// of the record.
func (record RedemptionRecord) SameOutcome(event RedemptionEvent) bool {
	return record.Status == event.Status &&
		record.ValueRedeemed.Equal(event.ValueRedeemed) &&
		record.RemainingValue.Equal(event.RemainingValue)
}

// CatalogSource lists the cards (and their benefits) a user owns.
type CatalogSource interface {
	ListOwnedCards(ctx context.Context, userID UserID) ([]OwnedCard, error)
}

// LedgerReader lists every redemption event for a user. Implementations must
// not pre-reduce to the latest event per benefit.
type LedgerReader interface {
	ListRedemptions(ctx context.Context, userID UserID) ([]RedemptionEvent, error)
}

// LedgerWriter persists redemption events.
type LedgerWriter interface {
	RecordRedemption(ctx context.Context, record RedemptionRecord) (RedemptionEvent, error)
	DeleteRedemptions(ctx context.Context, userID UserID, eventIDs []EventID) error
}

// RedemptionMilestones remembers that a user has redeemed at least once.
// Reverting deletes ledger events, so a ledger implementing it keeps the first
// redemption notification to once per account.
type RedemptionMilestones interface {
	HasRedeemed(ctx context.Context, userID UserID) (bool, error)
	MarkRedeemed(ctx context.Context, userID UserID, at time.Time) error
}

// Ledger combines read and write access to the redemption ledger.
type Ledger interface {
	LedgerReader
	LedgerWriter
}
