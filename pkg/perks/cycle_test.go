package perks

import (
	"errors"
	"testing"
	"time"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestCycleEndAnchoredBlocks(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		period PeriodMonths
		at     time.Time
		want   time.Time
	}{
		{name: "quarter containing may", period: PeriodQuarterly, at: date(2024, time.May, 15), want: date(2024, time.June, 30)},
		{name: "first quarter", period: PeriodQuarterly, at: date(2024, time.January, 1), want: date(2024, time.March, 31)},
		{name: "last quarter", period: PeriodQuarterly, at: date(2024, time.November, 30), want: date(2024, time.December, 31)},
		{name: "second half", period: PeriodSemiAnnual, at: date(2024, time.August, 1), want: date(2024, time.December, 31)},
		{name: "first half", period: PeriodSemiAnnual, at: date(2024, time.June, 30), want: date(2024, time.June, 30)},
		{name: "leap february", period: PeriodMonthly, at: date(2024, time.February, 10), want: date(2024, time.February, 29)},
		{name: "annual", period: PeriodAnnual, at: date(2024, time.March, 1), want: date(2024, time.December, 31)},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got, err := CycleEnd(testCase.period, testCase.at)
			if err != nil {
				test.Fatalf("cycle end: %v", err)
			}
			if !got.Equal(testCase.want) {
				test.Fatalf("expected %s, got %s", testCase.want.Format(time.DateOnly), got.Format(time.DateOnly))
			}
		})
	}
}

func TestCycleBoundariesForEveryDay(test *testing.T) {
	test.Parallel()
	periods := []PeriodMonths{PeriodMonthly, PeriodQuarterly, PeriodSemiAnnual, PeriodAnnual}
	for day := date(2023, time.January, 1); day.Before(date(2025, time.January, 1)); day = day.AddDate(0, 0, 1) {
		for _, period := range periods {
			start, err := CycleStart(period, day)
			if err != nil {
				test.Fatalf("cycle start: %v", err)
			}
			end, err := CycleEnd(period, day)
			if err != nil {
				test.Fatalf("cycle end: %v", err)
			}
			if start.Day() != 1 || (int(start.Month())-1)%period.Int() != 0 {
				test.Fatalf("%s %s: start %s is not anchored", period, day.Format(time.DateOnly), start.Format(time.DateOnly))
			}
			if int(end.Month())%period.Int() != 0 || end.AddDate(0, 0, 1).Day() != 1 {
				test.Fatalf("%s %s: end %s is not the last day of a block", period, day.Format(time.DateOnly), end.Format(time.DateOnly))
			}
			if day.Before(start) || day.After(end) {
				test.Fatalf("%s %s: outside [%s, %s]", period, day.Format(time.DateOnly), start.Format(time.DateOnly), end.Format(time.DateOnly))
			}
		}
	}
}

func TestCycleStartRejectsUnrecognizedPeriod(test *testing.T) {
	test.Parallel()
	for _, period := range []PeriodMonths{PeriodUnset, 2, 48} {
		if _, err := CycleStart(period, referenceNow); !errors.Is(err, ErrUnrecognizedPeriod) {
			test.Fatalf("period %d: expected ErrUnrecognizedPeriod, got %v", period, err)
		}
	}
}

func TestIsRedemptionValidForPeriodPastResetIsAlwaysInvalid(test *testing.T) {
	test.Parallel()
	pastReset := referenceNow.Add(-time.Minute)
	for _, period := range []PeriodMonths{PeriodUnset, PeriodMonthly, PeriodQuarterly, PeriodSemiAnnual, PeriodAnnual, 48} {
		for _, redeemedAt := range []time.Time{referenceNow, referenceNow.AddDate(-2, 0, 0), referenceNow.AddDate(1, 0, 0)} {
			valid, err := IsRedemptionValidForPeriod(redeemedAt, &pastReset, period, referenceNow)
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if valid {
				test.Fatalf("period %d redeemed %s: expected invalid after reset", period, redeemedAt)
			}
		}
	}
}

func TestIsRedemptionValidForPeriod(test *testing.T) {
	test.Parallel()
	futureReset := referenceNow.AddDate(0, 1, 0)
	farReset := referenceNow.AddDate(50, 0, 0)
	testCases := []struct {
		name       string
		redeemedAt time.Time
		resetDate  *time.Time
		period     PeriodMonths
		want       bool
		wantErr    error
	}{
		{name: "future reset", redeemedAt: date(2023, time.January, 1), resetDate: &futureReset, period: PeriodMonthly, want: true},
		{name: "far future reset", redeemedAt: date(2024, time.May, 1), resetDate: &farReset, period: PeriodAnnual, want: true},
		{name: "future reset unrecognized period", redeemedAt: date(2024, time.May, 1), resetDate: &futureReset, period: 48, want: true},
		{name: "reset equal to now", redeemedAt: date(2024, time.May, 1), resetDate: &referenceNow, period: PeriodMonthly, want: true},
		{name: "monthly this month", redeemedAt: date(2024, time.May, 1), period: PeriodMonthly, want: true},
		{name: "monthly last month", redeemedAt: date(2024, time.April, 30), period: PeriodMonthly, want: false},
		{name: "quarter start", redeemedAt: date(2024, time.April, 1), period: PeriodQuarterly, want: true},
		{name: "previous quarter", redeemedAt: date(2024, time.March, 31), period: PeriodQuarterly, want: false},
		{name: "half year", redeemedAt: date(2024, time.January, 2), period: PeriodSemiAnnual, want: true},
		{name: "previous year", redeemedAt: date(2023, time.December, 31), period: PeriodAnnual, want: false},
		{name: "unrecognized", redeemedAt: date(2024, time.May, 1), period: 48, want: false, wantErr: ErrUnrecognizedPeriod},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got, err := IsRedemptionValidForPeriod(testCase.redeemedAt, testCase.resetDate, testCase.period, referenceNow)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf("expected error %v, got %v", testCase.wantErr, err)
				}
			} else if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if got != testCase.want {
				test.Fatalf("expected %v, got %v", testCase.want, got)
			}
		})
	}
}

func TestCalculatePerkCycleDetails(test *testing.T) {
	test.Parallel()
	benefit := newBenefit(test, "hotel", "50", PeriodQuarterly)
	details, err := CalculatePerkCycleDetails(benefit, referenceNow)
	if err != nil {
		test.Fatalf("cycle details: %v", err)
	}
	if !details.CycleEndDate.Equal(date(2024, time.June, 30)) {
		test.Fatalf("unexpected cycle end %s", details.CycleEndDate)
	}
	if details.DaysRemaining != 46 {
		test.Fatalf("expected 46 days remaining, got %d", details.DaysRemaining)
	}

	lastDay := time.Date(2024, time.June, 30, 18, 0, 0, 0, time.UTC)
	details, err = CalculatePerkCycleDetails(benefit, lastDay)
	if err != nil {
		test.Fatalf("cycle details: %v", err)
	}
	if details.DaysRemaining != 0 {
		test.Fatalf("expected clamped zero days, got %d", details.DaysRemaining)
	}

	if _, err := CalculatePerkCycleDetails(newBenefit(test, "odd", "10", 48), referenceNow); !errors.Is(err, ErrUnrecognizedPeriod) {
		test.Fatalf("expected ErrUnrecognizedPeriod, got %v", err)
	}
	if _, err := CalculatePerkCycleDetails(newBenefit(test, "none", "10", PeriodUnset), referenceNow); !errors.Is(err, ErrMissingPeriod) {
		test.Fatalf("expected ErrMissingPeriod, got %v", err)
	}
}

func TestNextResetDate(test *testing.T) {
	test.Parallel()
	anniversary := date(2022, time.March, 10)
	endOfMonthAnniversary := date(2023, time.January, 31)
	anniversaryBenefit := func(period PeriodMonths) BenefitDefinition {
		benefit := newBenefit(test, "anniversary", "100", period)
		benefit.ResetType = ResetAnniversary
		return benefit
	}
	testCases := []struct {
		name        string
		benefit     BenefitDefinition
		anniversary *time.Time
		redeemedAt  time.Time
		want        time.Time
	}{
		{name: "calendar quarter", benefit: newBenefit(test, "q", "10", PeriodQuarterly), redeemedAt: referenceNow, want: date(2024, time.July, 1)},
		{name: "calendar month in december", benefit: newBenefit(test, "m", "10", PeriodMonthly), redeemedAt: date(2024, time.December, 5), want: date(2025, time.January, 1)},
		{name: "calendar half", benefit: newBenefit(test, "h", "10", PeriodSemiAnnual), redeemedAt: referenceNow, want: date(2024, time.July, 1)},
		{name: "anniversary without date falls back to calendar", benefit: anniversaryBenefit(PeriodAnnual), redeemedAt: referenceNow, want: date(2025, time.January, 1)},
		{name: "anniversary annual", benefit: anniversaryBenefit(PeriodAnnual), anniversary: &anniversary, redeemedAt: referenceNow, want: date(2025, time.March, 10)},
		{name: "anniversary on boundary", benefit: anniversaryBenefit(PeriodSemiAnnual), anniversary: &anniversary, redeemedAt: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC), want: date(2024, time.September, 10)},
		{name: "anniversary clamps month end", benefit: anniversaryBenefit(PeriodMonthly), anniversary: &endOfMonthAnniversary, redeemedAt: date(2024, time.February, 15), want: date(2024, time.February, 29)},
		{name: "four year benefit", benefit: newBenefit(test, "global-entry", "100", 48), redeemedAt: date(2024, time.May, 15), want: date(2028, time.May, 15)},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got, err := NextResetDate(testCase.benefit, testCase.anniversary, testCase.redeemedAt)
			if err != nil {
				test.Fatalf("next reset: %v", err)
			}
			if !got.Equal(testCase.want) {
				test.Fatalf("expected %s, got %s", testCase.want, got)
			}
		})
	}
	if _, err := NextResetDate(newBenefit(test, "none", "10", PeriodUnset), nil, referenceNow); !errors.Is(err, ErrMissingPeriod) {
		test.Fatalf("expected ErrMissingPeriod, got %v", err)
	}
}
