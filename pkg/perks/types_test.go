package perks

import (
	"errors"
	"testing"
)

func TestNewIdentifiers(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		build   func(raw string) (string, error)
		input   string
		wantErr error
		wantVal string
	}{
		{name: "user valid", build: parseUserID, input: " user-123 ", wantVal: "user-123"},
		{name: "user empty", build: parseUserID, input: "  ", wantErr: ErrInvalidUserID},
		{name: "card empty", build: parseCardID, input: "", wantErr: ErrInvalidCardID},
		{name: "benefit valid", build: parseBenefitID, input: "uber-cash", wantVal: "uber-cash"},
		{name: "benefit empty", build: parseBenefitID, input: "\t", wantErr: ErrInvalidBenefitID},
		{name: "event empty", build: parseEventID, input: "", wantErr: ErrInvalidEventID},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			value, err := testCase.build(testCase.input)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf("expected error %v, got %v", testCase.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if value != testCase.wantVal {
				test.Fatalf("expected %q, got %q", testCase.wantVal, value)
			}
		})
	}
}

func parseUserID(raw string) (string, error) {
	id, err := NewUserID(raw)
	return id.String(), err
}

func parseCardID(raw string) (string, error) {
	id, err := NewCardID(raw)
	return id.String(), err
}

func parseBenefitID(raw string) (string, error) {
	id, err := NewBenefitID(raw)
	return id.String(), err
}

func parseEventID(raw string) (string, error) {
	id, err := NewEventID(raw)
	return id.String(), err
}

func TestNewMoney(test *testing.T) {
	test.Parallel()
	if _, err := NewMoney("-1"); !errors.Is(err, ErrInvalidMoney) {
		test.Fatalf("expected ErrInvalidMoney, got %v", err)
	}
	if _, err := NewMoney("ten"); !errors.Is(err, ErrInvalidMoney) {
		test.Fatalf("expected ErrInvalidMoney, got %v", err)
	}
	value, err := NewMoney(" 12.50 ")
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	assertMoney(test, "money", "12.5", value)
}

func TestParseRedemptionStatus(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"available", "redeemed", "partially_redeemed"} {
		status, err := ParseRedemptionStatus(raw)
		if err != nil {
			test.Fatalf("parse %q: %v", raw, err)
		}
		if status.String() != raw {
			test.Fatalf("expected %q, got %q", raw, status)
		}
	}
	if _, err := ParseRedemptionStatus("missed"); !errors.Is(err, ErrInvalidStatus) {
		test.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestParseResetType(test *testing.T) {
	test.Parallel()
	resetType, err := ParseResetType("")
	if err != nil || resetType != ResetCalendar {
		test.Fatalf("expected calendar default, got %q (%v)", resetType, err)
	}
	resetType, err = ParseResetType("Anniversary")
	if err != nil || resetType != ResetAnniversary {
		test.Fatalf("expected anniversary, got %q (%v)", resetType, err)
	}
	if _, err := ParseResetType("weekly"); !errors.Is(err, ErrInvalidResetType) {
		test.Fatalf("expected ErrInvalidResetType, got %v", err)
	}
}

func TestPeriodMonths(test *testing.T) {
	test.Parallel()
	if _, err := NewPeriodMonths(-3); !errors.Is(err, ErrInvalidPeriod) {
		test.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	period, err := NewPeriodMonths(48)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if !period.IsSet() || period.Recognized() {
		test.Fatalf("expected 48 months to be set but unrecognized")
	}
	if period.String() != "48_months" || PeriodSemiAnnual.String() != "semi_annual" {
		test.Fatalf("unexpected period names %q %q", period, PeriodSemiAnnual)
	}
	if PeriodUnset.IsSet() {
		test.Fatalf("expected unset period")
	}
}

func TestNewRedemptionEventRejectsAvailable(test *testing.T) {
	test.Parallel()
	_, err := NewRedemptionEvent(mustEventID(test, "e-1"), mustBenefitID(test, "b-1"), referenceNow, nil, StatusAvailable, mustMoney(test, "0"), mustMoney(test, "0"))
	if !errors.Is(err, ErrInvalidStatus) {
		test.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestOwnedBenefitsFlattensInOrder(test *testing.T) {
	test.Parallel()
	cards := []OwnedCard{
		newOwnedCard(test, "card-a", "95", newBenefit(test, "a-1", "10", PeriodMonthly), newBenefit(test, "a-2", "50", PeriodAnnual)),
		newOwnedCard(test, "card-b", "0", newBenefit(test, "b-1", "25", PeriodQuarterly)),
	}
	owned := OwnedBenefits(cards)
	if len(owned) != 3 {
		test.Fatalf("expected 3 benefits, got %d", len(owned))
	}
	if owned[2].CardID.String() != "card-b" || owned[2].Benefit.ID.String() != "b-1" {
		test.Fatalf("unexpected flatten order: %+v", owned[2])
	}
}
