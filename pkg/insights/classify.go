package insights

import (
	"math"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/shopspring/decimal"
)

// Bucket is the display group a perk falls into for a month.
type Bucket string

const (
	BucketMonthly           Bucket = "monthly"
	BucketDueThisMonth      Bucket = "due_this_month"
	BucketExpiringNextMonth Bucket = "expiring_next_month"
	BucketEarlyRedemption   Bucket = "bonus_early_redemption"
	BucketRedeemed          Bucket = "successfully_redeemed"
	BucketUpcoming          Bucket = "upcoming"
)

var (
	oneHundred = decimal.NewFromInt(100)
	half       = decimal.NewFromFloat(0.5)
)

// Relevant reports whether perks in the bucket count towards a month's value sums.
func (bucket Bucket) Relevant() bool {
	switch bucket {
	case BucketMonthly, BucketDueThisMonth, BucketExpiringNextMonth:
		return true
	default:
		return false
	}
}

// Scored reports whether perks in the bucket enter the completion score.
func (bucket Bucket) Scored() bool {
	return bucket == BucketMonthly || bucket == BucketDueThisMonth
}

// Classify places a perk in exactly one bucket; the first matching rule wins.
// Available non-monthly perks that are neither due nor about to expire go to
// BucketUpcoming.
func Classify(detail PerkDetail, isCurrentMonth bool) Bucket {
	if detail.Period == perks.PeriodMonthly {
		return BucketMonthly
	}
	if detail.ExpiresThisMonth {
		return BucketDueThisMonth
	}
	if isCurrentMonth && detail.ExpiresNextMonth {
		return BucketExpiringNextMonth
	}
	if detail.Status == MonthlyRedeemed || detail.Status == MonthlyPartial {
		if isCurrentMonth {
			return BucketEarlyRedemption
		}
		return BucketRedeemed
	}
	return BucketUpcoming
}

// ClassifySummary groups a month's perks by bucket, keeping input order.
func ClassifySummary(summary MonthlyRedemptionSummary, isCurrentMonth bool) map[Bucket][]PerkDetail {
	buckets := make(map[Bucket][]PerkDetail)
	for _, detail := range summary.PerkDetails {
		bucket := Classify(detail, isCurrentMonth)
		buckets[bucket] = append(buckets[bucket], detail)
	}
	return buckets
}

// CalculateRedemptionValues sums a month's values, optionally restricted to
// the perks relevant to that month.
func CalculateRedemptionValues(summary MonthlyRedemptionSummary, onlyRelevant bool, isCurrentMonth bool) RedemptionValues {
	return sumValues(summary.PerkDetails, func(detail PerkDetail) bool {
		return !onlyRelevant || Classify(detail, isCurrentMonth).Relevant()
	})
}

// CalculateMonthlyPerksOnly sums only the monthly-period perks, for fee coverage.
func CalculateMonthlyPerksOnly(summary MonthlyRedemptionSummary) RedemptionValues {
	return sumValues(summary.PerkDetails, func(detail PerkDetail) bool {
		return detail.Period == perks.PeriodMonthly
	})
}

func sumValues(details []PerkDetail, include func(PerkDetail) bool) RedemptionValues {
	values := RedemptionValues{
		RedeemedValue:  decimal.Zero,
		PartialValue:   decimal.Zero,
		AvailableValue: decimal.Zero,
		MissedValue:    decimal.Zero,
		PotentialValue: decimal.Zero,
	}
	for _, detail := range details {
		if !include(detail) {
			continue
		}
		switch detail.Status {
		case MonthlyRedeemed:
			values.RedeemedValue = values.RedeemedValue.Add(detail.Value)
		case MonthlyPartial:
			if detail.PartialValue.Valid {
				values.PartialValue = values.PartialValue.Add(detail.PartialValue.Decimal)
			}
		case MonthlyAvailable:
			values.AvailableValue = values.AvailableValue.Add(detail.Value)
		case MonthlyMissed:
			values.MissedValue = values.MissedValue.Add(detail.Value)
		}
		values.PotentialValue = values.PotentialValue.Add(detail.Value)
	}
	return values
}

// PerformanceScore is the month's completion percentage over scored perks,
// with partial redemptions counting half. A month with nothing to score is 100.
func PerformanceScore(summary MonthlyRedemptionSummary, isCurrentMonth bool) int {
	var total, redeemed, partial int64
	for _, detail := range summary.PerkDetails {
		if !Classify(detail, isCurrentMonth).Scored() {
			continue
		}
		total++
		switch detail.Status {
		case MonthlyRedeemed:
			redeemed++
		case MonthlyPartial:
			partial++
		case MonthlyAvailable, MonthlyMissed:
		}
	}
	if total == 0 {
		return 100
	}
	completed := decimal.NewFromInt(redeemed).Add(half.Mul(decimal.NewFromInt(partial)))
	ratio := completed.Div(decimal.NewFromInt(total)).Mul(oneHundred).InexactFloat64()
	return int(math.Round(ratio))
}

// Progress turns value sums into bar segments. With no potential value the
// bar is shown fully redeemed.
func Progress(values RedemptionValues) ProgressBreakdown {
	if values.PotentialValue.Sign() <= 0 {
		return ProgressBreakdown{RedeemedPercent: 100}
	}
	percent := func(part decimal.Decimal) float64 {
		return part.Div(values.PotentialValue).Mul(oneHundred).InexactFloat64()
	}
	return ProgressBreakdown{
		RedeemedPercent:  percent(values.RedeemedValue),
		PartialPercent:   percent(values.PartialValue),
		MissedPercent:    percent(values.MissedValue),
		AvailablePercent: percent(values.AvailableValue),
	}
}

// ExpiryFlags reports whether a perk's anchored cycle ends in month or in the
// month after. Blocks are anchored at January, so with zero-based months a
// half-year ends at June (5) and December (11).
func ExpiryFlags(period perks.PeriodMonths, month time.Month) (expiresThisMonth bool, expiresNextMonth bool) {
	if !period.Recognized() {
		return false, false
	}
	length := period.Int()
	index := int(month) - 1
	expiresThisMonth = (index+1)%length == 0
	expiresNextMonth = length > 1 && (index+2)%length == 0
	return expiresThisMonth, expiresNextMonth
}

// IsCurrentMonth reports whether the summary covers the calendar month of now.
func IsCurrentMonth(summary MonthlyRedemptionSummary, now time.Time) bool {
	year, month, _ := now.Date()
	return summary.Month.Year() == year && summary.Month.Month() == month
}
