package insights

import (
	"sort"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/shopspring/decimal"
)

const monthYearLayout = "January 2006"

// BuildMonthlySummaries derives the per-month perk outcomes for the last
// months calendar months ending at now, newest first. Perks are placed on the
// calendar grid of their period; a perk with no redemption inside the cycle
// that covers the month is missed once that month has closed and the perk was
// due in it, and available otherwise. Perks on periods without a calendar
// grid never expire inside a month and are never missed.
func BuildMonthlySummaries(cards []perks.OwnedCard, events []perks.RedemptionEvent, now time.Time, months int) []MonthlyRedemptionSummary {
	if months <= 0 {
		return nil
	}
	eventsByBenefit := make(map[perks.BenefitID][]perks.RedemptionEvent)
	for _, event := range events {
		eventsByBenefit[event.BenefitID] = append(eventsByBenefit[event.BenefitID], event)
	}
	for benefitID := range eventsByBenefit {
		history := eventsByBenefit[benefitID]
		sort.SliceStable(history, func(left, right int) bool {
			return history[left].RedemptionDate.Before(history[right].RedemptionDate)
		})
	}

	currentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	summaries := make([]MonthlyRedemptionSummary, 0, months)
	for offset := 0; offset < months; offset++ {
		monthStart := currentMonth.AddDate(0, -offset, 0)
		summaries = append(summaries, buildMonth(cards, eventsByBenefit, monthStart, offset > 0))
	}
	return summaries
}

func buildMonth(cards []perks.OwnedCard, eventsByBenefit map[perks.BenefitID][]perks.RedemptionEvent, monthStart time.Time, closed bool) MonthlyRedemptionSummary {
	summary := MonthlyRedemptionSummary{
		MonthYear:           monthStart.Format(monthYearLayout),
		Month:               monthStart,
		TotalRedeemedValue:  decimal.Zero,
		TotalPotentialValue: decimal.Zero,
	}
	monthEnd := monthStart.AddDate(0, 1, 0)
	for _, card := range cards {
		for _, benefit := range card.Benefits {
			if !benefit.PeriodMonths.IsSet() {
				continue
			}
			expiresThisMonth, expiresNextMonth := ExpiryFlags(benefit.PeriodMonths, monthStart.Month())
			detail := PerkDetail{
				ID:               benefit.ID,
				Name:             benefit.Name,
				CardID:           card.Card.ID,
				Status:           MonthlyAvailable,
				Period:           benefit.PeriodMonths,
				Value:            benefit.Value,
				ExpiresThisMonth: expiresThisMonth,
				ExpiresNextMonth: expiresNextMonth,
			}
			if event, found := latestCovering(card, benefit, eventsByBenefit[benefit.ID], monthStart, monthEnd); found {
				switch event.Status {
				case perks.StatusRedeemed:
					detail.Status = MonthlyRedeemed
				case perks.StatusPartiallyRedeemed:
					detail.Status = MonthlyPartial
					detail.PartialValue = decimal.NewNullDecimal(benefit.Value.Sub(event.RemainingValue))
				case perks.StatusAvailable:
				}
				detail.RedeemedInMonth = !event.RedemptionDate.Before(monthStart)
			}
			if detail.Status == MonthlyAvailable && closed && (benefit.PeriodMonths == perks.PeriodMonthly || expiresThisMonth) {
				detail.Status = MonthlyMissed
			}

			switch detail.Status {
			case MonthlyRedeemed:
				summary.TotalRedeemedValue = summary.TotalRedeemedValue.Add(detail.Value)
			case MonthlyPartial:
				summary.TotalRedeemedValue = summary.TotalRedeemedValue.Add(detail.PartialValue.Decimal)
			case MonthlyAvailable, MonthlyMissed:
			}
			summary.TotalPotentialValue = summary.TotalPotentialValue.Add(detail.Value)
			summary.PerkDetails = append(summary.PerkDetails, detail)
		}
	}
	return summary
}

// latestCovering returns the newest event that still counts for the month.
// Calendar periods look inside the cycle containing the month; other periods
// have no calendar grid, so an event counts until its own reset date.
func latestCovering(card perks.OwnedCard, benefit perks.BenefitDefinition, history []perks.RedemptionEvent, monthStart time.Time, monthEnd time.Time) (perks.RedemptionEvent, bool) {
	if benefit.PeriodMonths.Recognized() {
		cycleStart, err := perks.CycleStart(benefit.PeriodMonths, monthStart)
		if err != nil {
			return perks.RedemptionEvent{}, false
		}
		return latestInWindow(history, cycleStart, monthEnd)
	}
	for index := len(history) - 1; index >= 0; index-- {
		event := history[index]
		if !event.RedemptionDate.Before(monthEnd) {
			continue
		}
		resetDate, err := eventResetDate(card, benefit, event)
		if err != nil || !resetDate.After(monthStart) {
			return perks.RedemptionEvent{}, false
		}
		return event, true
	}
	return perks.RedemptionEvent{}, false
}

func eventResetDate(card perks.OwnedCard, benefit perks.BenefitDefinition, event perks.RedemptionEvent) (time.Time, error) {
	if event.ResetDate != nil {
		return *event.ResetDate, nil
	}
	return perks.NextResetDate(benefit, card.AnniversaryDate, event.RedemptionDate)
}

// latestInWindow expects history sorted by redemption date.
func latestInWindow(history []perks.RedemptionEvent, from time.Time, until time.Time) (perks.RedemptionEvent, bool) {
	for index := len(history) - 1; index >= 0; index-- {
		event := history[index]
		if !event.RedemptionDate.Before(until) {
			continue
		}
		if event.RedemptionDate.Before(from) {
			return perks.RedemptionEvent{}, false
		}
		return event, true
	}
	return perks.RedemptionEvent{}, false
}
