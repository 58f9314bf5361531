package perks

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AnomalyKind classifies recoverable data problems met while computing state.
type AnomalyKind string

const (
	AnomalyMissingPeriod      AnomalyKind = "missing_period"
	AnomalyUnrecognizedPeriod AnomalyKind = "unrecognized_period"
	AnomalyInconsistentEvent  AnomalyKind = "inconsistent_event"
	AnomalyClamped            AnomalyKind = "clamped"
	AnomalyHookFailed         AnomalyKind = "first_redemption_hook_failed"
	AnomalyMilestoneFailed    AnomalyKind = "first_redemption_mark_failed"
)

// Anomaly is a recovered problem worth surfacing to operators.
type Anomaly struct {
	Kind      AnomalyKind
	BenefitID BenefitID
	Err       error
}

// BenefitStatus is the derived state of one benefit for the current cycle.
type BenefitStatus struct {
	BenefitID      BenefitID
	CardID         CardID
	Status         RedemptionStatus
	RemainingValue decimal.Decimal
}

// PeriodAggregate rolls up every owned benefit sharing a period length.
type PeriodAggregate struct {
	RedeemedValue          decimal.Decimal
	PossibleValue          decimal.Decimal
	RedeemedCount          int
	TotalCount             int
	PartiallyRedeemedCount int
}

// Snapshot is the full derived state for one user.
type Snapshot struct {
	Statuses    map[BenefitID]BenefitStatus
	Periods     map[PeriodMonths]PeriodAggregate
	CardSavings map[CardID]decimal.Decimal
	ComputedAt  time.Time
	Anomalies   []Anomaly
}

// Clone returns a deep copy safe to hand to readers.
func (snapshot Snapshot) Clone() Snapshot {
	clone := Snapshot{
		Statuses:    make(map[BenefitID]BenefitStatus, len(snapshot.Statuses)),
		Periods:     make(map[PeriodMonths]PeriodAggregate, len(snapshot.Periods)),
		CardSavings: make(map[CardID]decimal.Decimal, len(snapshot.CardSavings)),
		ComputedAt:  snapshot.ComputedAt,
		Anomalies:   append([]Anomaly(nil), snapshot.Anomalies...),
	}
	for key, value := range snapshot.Statuses {
		clone.Statuses[key] = value
	}
	for key, value := range snapshot.Periods {
		clone.Periods[key] = value
	}
	for key, value := range snapshot.CardSavings {
		clone.CardSavings[key] = value
	}
	return clone
}

// TotalSaved sums the cumulative savings of every card.
func (snapshot Snapshot) TotalSaved() decimal.Decimal {
	total := decimal.Zero
	for _, saved := range snapshot.CardSavings {
		total = total.Add(saved)
	}
	return total
}

// BuildSnapshot derives benefit statuses and aggregates from the user's owned
// benefits and every ledger event. Statuses are settled for all benefits
// before either aggregate pass runs.
func BuildSnapshot(benefits []OwnedBenefit, events []RedemptionEvent, now time.Time) Snapshot {
	snapshot := Snapshot{
		Statuses:    make(map[BenefitID]BenefitStatus, len(benefits)),
		Periods:     make(map[PeriodMonths]PeriodAggregate),
		CardSavings: make(map[CardID]decimal.Decimal),
		ComputedAt:  now,
	}
	latest := ReduceToLatestPerBenefit(events)

	for _, owned := range benefits {
		benefit := owned.Benefit
		if _, seen := snapshot.CardSavings[owned.CardID]; !seen {
			snapshot.CardSavings[owned.CardID] = decimal.Zero
		}
		status := BenefitStatus{
			BenefitID:      benefit.ID,
			CardID:         owned.CardID,
			Status:         StatusAvailable,
			RemainingValue: decimal.Zero,
		}
		if !benefit.PeriodMonths.IsSet() {
			snapshot.Anomalies = append(snapshot.Anomalies, Anomaly{
				Kind:      AnomalyMissingPeriod,
				BenefitID: benefit.ID,
				Err:       fmt.Errorf("%w: %s", ErrMissingPeriod, benefit.ID),
			})
			snapshot.Statuses[benefit.ID] = status
			continue
		}
		event, hasEvent := latest[benefit.ID]
		if hasEvent {
			valid, err := IsRedemptionValidForPeriod(event.RedemptionDate, event.ResetDate, benefit.PeriodMonths, now)
			if err != nil {
				snapshot.Anomalies = append(snapshot.Anomalies, Anomaly{
					Kind:      AnomalyUnrecognizedPeriod,
					BenefitID: benefit.ID,
					Err:       err,
				})
			}
			if valid {
				var anomaly *Anomaly
				status, anomaly = statusFromEvent(status, event, benefit.Value)
				if anomaly != nil {
					snapshot.Anomalies = append(snapshot.Anomalies, *anomaly)
				}
			}
		}
		snapshot.Statuses[benefit.ID] = status
	}

	for _, owned := range benefits {
		benefit := owned.Benefit
		if !benefit.PeriodMonths.IsSet() {
			continue
		}
		status := snapshot.Statuses[benefit.ID]
		if status.Status == StatusAvailable {
			continue
		}
		credit := creditedValue(benefit.Value, status.Status, status.RemainingValue)
		snapshot.CardSavings[owned.CardID] = snapshot.CardSavings[owned.CardID].Add(credit)
		aggregate := snapshot.Periods[benefit.PeriodMonths]
		aggregate.RedeemedValue = aggregate.RedeemedValue.Add(credit)
		switch status.Status {
		case StatusRedeemed:
			aggregate.RedeemedCount++
		case StatusPartiallyRedeemed:
			aggregate.PartiallyRedeemedCount++
		case StatusAvailable:
		}
		snapshot.Periods[benefit.PeriodMonths] = aggregate
	}

	for _, owned := range benefits {
		benefit := owned.Benefit
		if !benefit.PeriodMonths.IsSet() {
			continue
		}
		aggregate := snapshot.Periods[benefit.PeriodMonths]
		aggregate.PossibleValue = aggregate.PossibleValue.Add(benefit.Value)
		aggregate.TotalCount++
		snapshot.Periods[benefit.PeriodMonths] = aggregate
	}
	return snapshot
}

// statusFromEvent applies a valid ledger event, normalizing partial events
// whose remaining value falls outside (0, value).
func statusFromEvent(status BenefitStatus, event RedemptionEvent, value decimal.Decimal) (BenefitStatus, *Anomaly) {
	switch event.Status {
	case StatusRedeemed:
		status.Status = StatusRedeemed
		return status, nil
	case StatusPartiallyRedeemed:
		remaining := event.RemainingValue
		if remaining.Sign() <= 0 {
			status.Status = StatusRedeemed
			return status, &Anomaly{
				Kind:      AnomalyInconsistentEvent,
				BenefitID: status.BenefitID,
				Err:       fmt.Errorf("%w: partial event %s has no remaining value", ErrInvalidRemainingValue, event.EventID),
			}
		}
		if remaining.GreaterThanOrEqual(value) {
			return status, &Anomaly{
				Kind:      AnomalyInconsistentEvent,
				BenefitID: status.BenefitID,
				Err:       fmt.Errorf("%w: partial event %s leaves %s of %s", ErrInvalidRemainingValue, event.EventID, remaining, value),
			}
		}
		status.Status = StatusPartiallyRedeemed
		status.RemainingValue = remaining
		return status, nil
	case StatusAvailable:
		return status, nil
	default:
		return status, &Anomaly{
			Kind:      AnomalyInconsistentEvent,
			BenefitID: status.BenefitID,
			Err:       fmt.Errorf("%w: %q", ErrInvalidStatus, event.Status),
		}
	}
}

// creditedValue is the portion of a benefit's value counted as saved.
func creditedValue(value decimal.Decimal, status RedemptionStatus, remaining decimal.Decimal) decimal.Decimal {
	switch status {
	case StatusRedeemed:
		return value
	case StatusPartiallyRedeemed:
		return value.Sub(remaining)
	case StatusAvailable:
		return decimal.Zero
	default:
		return decimal.Zero
	}
}
