package perks

import (
	"fmt"
	"math"
	"time"
)

const hoursPerDay = 24

// CycleDetails describes how soon a benefit's current cycle ends.
type CycleDetails struct {
	CycleEndDate  time.Time
	DaysRemaining int
}

// CycleStart returns the first instant of the calendar cycle containing at.
// Quarters start in January, April, July and October; half-years in January
// and July. Periods without a calendar anchoring return ErrUnrecognizedPeriod.
func CycleStart(period PeriodMonths, at time.Time) (time.Time, error) {
	year, month, _ := at.Date()
	location := at.Location()
	var startMonth time.Month
	switch period {
	case PeriodMonthly:
		startMonth = month
	case PeriodQuarterly:
		startMonth = time.Month((int(month)-1)/3*3 + 1)
	case PeriodSemiAnnual:
		startMonth = time.Month((int(month)-1)/6*6 + 1)
	case PeriodAnnual:
		startMonth = time.January
	default:
		return time.Time{}, fmt.Errorf("%w: %d", ErrUnrecognizedPeriod, int(period))
	}
	return time.Date(year, startMonth, 1, 0, 0, 0, 0, location), nil
}

// CycleEnd returns midnight of the last calendar day of the cycle containing at.
func CycleEnd(period PeriodMonths, at time.Time) (time.Time, error) {
	start, err := CycleStart(period, at)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(start.Year(), start.Month()+time.Month(period), 0, 0, 0, 0, 0, start.Location()), nil
}

// IsRedemptionValidForPeriod reports whether a past redemption still counts
// at now. A recorded reset date decides on its own: in the past means the
// cycle rolled over, otherwise the redemption holds. Without a reset date the
// redemption must fall inside the current calendar cycle. An unrecognized
// period is reported as an error and the redemption is treated as invalid.
func IsRedemptionValidForPeriod(redemptionDate time.Time, resetDate *time.Time, period PeriodMonths, now time.Time) (bool, error) {
	if resetDate != nil {
		return !resetDate.Before(now), nil
	}
	cycleStart, err := CycleStart(period, now)
	if err != nil {
		return false, err
	}
	return !redemptionDate.Before(cycleStart), nil
}

// CalculatePerkCycleDetails returns the end of the benefit's current calendar
// cycle and the whole days left until then, never negative.
func CalculatePerkCycleDetails(benefit BenefitDefinition, currentDate time.Time) (CycleDetails, error) {
	if !benefit.PeriodMonths.IsSet() {
		return CycleDetails{}, fmt.Errorf("%w: %s", ErrMissingPeriod, benefit.ID)
	}
	cycleEnd, err := CycleEnd(benefit.PeriodMonths, currentDate)
	if err != nil {
		return CycleDetails{}, err
	}
	days := int(math.Ceil(cycleEnd.Sub(currentDate).Hours() / hoursPerDay))
	if days < 0 {
		days = 0
	}
	return CycleDetails{CycleEndDate: cycleEnd, DaysRemaining: days}, nil
}

// NextResetDate computes the reset date written alongside a new redemption.
// Calendar benefits reset at the start of the next anchored cycle. Anniversary
// benefits reset on the next period boundary counted from the card's
// anniversary. Any other period rolls forward from the redemption itself.
func NextResetDate(benefit BenefitDefinition, anniversary *time.Time, redemptionDate time.Time) (time.Time, error) {
	period := benefit.PeriodMonths
	if !period.IsSet() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrMissingPeriod, benefit.ID)
	}
	if benefit.ResetType == ResetAnniversary && anniversary != nil {
		return nextAnniversaryBoundary(*anniversary, period, redemptionDate), nil
	}
	if period.Recognized() {
		cycleStart, err := CycleStart(period, redemptionDate)
		if err != nil {
			return time.Time{}, err
		}
		return cycleStart.AddDate(0, period.Int(), 0), nil
	}
	return addMonthsClamped(redemptionDate, period.Int()), nil
}

func nextAnniversaryBoundary(anniversary time.Time, period PeriodMonths, after time.Time) time.Time {
	location := after.Location()
	anchorYear, anchorMonth, anchorDay := anniversary.In(location).Date()
	anchor := time.Date(anchorYear, anchorMonth, anchorDay, 0, 0, 0, 0, location)
	elapsedMonths := (after.Year()-anchorYear)*12 + int(after.Month()) - int(anchorMonth)
	step := period.Int()
	offset := elapsedMonths - floorMod(elapsedMonths, step)
	boundary := addMonthsClamped(anchor, offset)
	for !boundary.After(after) {
		offset += step
		boundary = addMonthsClamped(anchor, offset)
	}
	for {
		previous := addMonthsClamped(anchor, offset-step)
		if !previous.After(after) {
			return boundary
		}
		offset -= step
		boundary = previous
	}
}

// addMonthsClamped moves by whole months, pinning the day to the target
// month's last day instead of overflowing into the next month.
func addMonthsClamped(at time.Time, months int) time.Time {
	year, month, day := at.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, at.Hour(), at.Minute(), at.Second(), at.Nanosecond(), at.Location())
	lastDay := time.Date(firstOfTarget.Year(), firstOfTarget.Month()+1, 0, 0, 0, 0, 0, at.Location()).Day()
	if day > lastDay {
		day = lastDay
	}
	return firstOfTarget.AddDate(0, 0, day-1)
}

func floorMod(value int, modulus int) int {
	remainder := value % modulus
	if remainder < 0 {
		remainder += modulus
	}
	return remainder
}
