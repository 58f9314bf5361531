package insights

import (
	"sort"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/shopspring/decimal"
)

// NewCardROI computes a card's fee coverage. A fee-free card with any
// redemption scores 100.
func NewCardROI(card perks.Card, totalRedeemed decimal.Decimal) CardROI {
	roi := CardROI{
		ID:            card.ID,
		Name:          card.Name,
		TotalRedeemed: totalRedeemed,
		AnnualFee:     card.AnnualFee,
		ROIPercentage: decimal.Zero,
	}
	switch {
	case card.AnnualFee.Sign() > 0:
		roi.ROIPercentage = totalRedeemed.Div(card.AnnualFee).Mul(oneHundred)
	case totalRedeemed.Sign() > 0:
		roi.ROIPercentage = oneHundred
	}
	return roi
}

// Leaderboard returns the entries ordered by ROI, highest first. Ties keep
// their input order.
func Leaderboard(entries []CardROI) []CardROI {
	ordered := append([]CardROI(nil), entries...)
	sort.SliceStable(ordered, func(left, right int) bool {
		return ordered[left].ROIPercentage.GreaterThan(ordered[right].ROIPercentage)
	})
	return ordered
}

// RedeemedByCard sums redeemed and partial value per card across summaries.
// A redemption is counted only in the month it happened so a cycle spanning
// several summaries is not counted twice.
func RedeemedByCard(summaries []MonthlyRedemptionSummary) map[perks.CardID]decimal.Decimal {
	totals := make(map[perks.CardID]decimal.Decimal)
	for _, summary := range summaries {
		for _, detail := range summary.PerkDetails {
			current, seen := totals[detail.CardID]
			if !seen {
				current = decimal.Zero
			}
			if !detail.RedeemedInMonth {
				totals[detail.CardID] = current
				continue
			}
			switch detail.Status {
			case MonthlyRedeemed:
				current = current.Add(detail.Value)
			case MonthlyPartial:
				if detail.PartialValue.Valid {
					current = current.Add(detail.PartialValue.Decimal)
				}
			case MonthlyAvailable, MonthlyMissed:
			}
			totals[detail.CardID] = current
		}
	}
	return totals
}

// BuildLeaderboard pairs every owned card with its redeemed total and ranks them.
func BuildLeaderboard(cards []perks.OwnedCard, summaries []MonthlyRedemptionSummary) []CardROI {
	totals := RedeemedByCard(summaries)
	entries := make([]CardROI, 0, len(cards))
	for _, card := range cards {
		total, seen := totals[card.Card.ID]
		if !seen {
			total = decimal.Zero
		}
		entries = append(entries, NewCardROI(card.Card, total))
	}
	return Leaderboard(entries)
}
