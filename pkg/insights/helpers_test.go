package insights

import (
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func mustCardID(test *testing.T, raw string) perks.CardID {
	test.Helper()
	cardID, err := perks.NewCardID(raw)
	require.NoError(test, err)
	return cardID
}

func mustBenefitID(test *testing.T, raw string) perks.BenefitID {
	test.Helper()
	benefitID, err := perks.NewBenefitID(raw)
	require.NoError(test, err)
	return benefitID
}

func mustEventID(test *testing.T, raw string) perks.EventID {
	test.Helper()
	eventID, err := perks.NewEventID(raw)
	require.NoError(test, err)
	return eventID
}

func money(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func detail(period perks.PeriodMonths, status MonthlyStatus, value string) PerkDetail {
	return PerkDetail{Period: period, Status: status, Value: money(value)}
}

func partialDetail(period perks.PeriodMonths, value string, partial string) PerkDetail {
	perk := detail(period, MonthlyPartial, value)
	perk.PartialValue = decimal.NewNullDecimal(money(partial))
	return perk
}

func expiring(perk PerkDetail, thisMonth bool, nextMonth bool) PerkDetail {
	perk.ExpiresThisMonth = thisMonth
	perk.ExpiresNextMonth = nextMonth
	return perk
}

func benefit(test *testing.T, id string, value string, period perks.PeriodMonths) perks.BenefitDefinition {
	test.Helper()
	return perks.BenefitDefinition{
		ID:           mustBenefitID(test, id),
		Name:         id,
		Value:        money(value),
		PeriodMonths: period,
		ResetType:    perks.ResetCalendar,
	}
}

func redemption(test *testing.T, id string, benefitID string, at time.Time, status perks.RedemptionStatus, remaining string) perks.RedemptionEvent {
	test.Helper()
	return perks.RedemptionEvent{
		EventID:        mustEventID(test, id),
		BenefitID:      mustBenefitID(test, benefitID),
		RedemptionDate: at,
		Status:         status,
		RemainingValue: money(remaining),
	}
}

func assertDecimal(test *testing.T, expected string, actual decimal.Decimal) {
	test.Helper()
	require.Truef(test, money(expected).Equal(actual), "expected %s, got %s", expected, actual)
}
