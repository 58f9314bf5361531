package insights

import (
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/shopspring/decimal"
)

// MonthlyStatus is a perk's outcome within one calendar month.
type MonthlyStatus string

const (
	MonthlyRedeemed  MonthlyStatus = "redeemed"
	MonthlyPartial   MonthlyStatus = "partial"
	MonthlyAvailable MonthlyStatus = "available"
	MonthlyMissed    MonthlyStatus = "missed"
)

// PerkDetail is one perk as seen in a given month.
type PerkDetail struct {
	ID               perks.BenefitID
	Name             string
	CardID           perks.CardID
	Status           MonthlyStatus
	Period           perks.PeriodMonths
	Value            decimal.Decimal
	PartialValue     decimal.NullDecimal
	ExpiresThisMonth bool
	ExpiresNextMonth bool
	// RedeemedInMonth is set when the redemption backing Status happened in
	// this month rather than earlier in the cycle.
	RedeemedInMonth bool
}

// MonthlyRedemptionSummary collects every perk detail for one calendar month.
type MonthlyRedemptionSummary struct {
	MonthYear           string
	Month               time.Time
	PerkDetails         []PerkDetail
	TotalRedeemedValue  decimal.Decimal
	TotalPotentialValue decimal.Decimal
}

// RedemptionValues are the value sums of a (possibly filtered) month.
type RedemptionValues struct {
	RedeemedValue  decimal.Decimal
	PartialValue   decimal.Decimal
	AvailableValue decimal.Decimal
	MissedValue    decimal.Decimal
	PotentialValue decimal.Decimal
}

// ProgressBreakdown splits a month's potential value into bar segments, in percent.
type ProgressBreakdown struct {
	RedeemedPercent  float64
	PartialPercent   float64
	MissedPercent    float64
	AvailablePercent float64
}

// CardROI is a card's redeemed value against its annual fee.
type CardROI struct {
	ID            perks.CardID
	Name          string
	TotalRedeemed decimal.Decimal
	AnnualFee     decimal.Decimal
	ROIPercentage decimal.Decimal
}
