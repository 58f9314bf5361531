package httpapi

import (
	"sort"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/insights"
	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/shopspring/decimal"
)

const monthLayout = "2006-01"

type statusRequest struct {
	Status         string           `json:"status"`
	RemainingValue *decimal.Decimal `json:"remaining_value"`
}

type snapshotResponse struct {
	ComputedAt time.Time            `json:"computed_at"`
	TotalSaved decimal.Decimal      `json:"total_saved"`
	Benefits   []benefitPayload     `json:"benefits"`
	Periods    []periodPayload      `json:"periods"`
	Cards      []cardSavingsPayload `json:"cards"`
	Anomalies  []anomalyPayload     `json:"anomalies"`
}

type benefitPayload struct {
	BenefitID      string          `json:"benefit_id"`
	CardID         string          `json:"card_id"`
	Status         string          `json:"status"`
	RemainingValue decimal.Decimal `json:"remaining_value"`
}

type periodPayload struct {
	PeriodMonths           int             `json:"period_months"`
	Label                  string          `json:"label"`
	RedeemedValue          decimal.Decimal `json:"redeemed_value"`
	PossibleValue          decimal.Decimal `json:"possible_value"`
	RedeemedCount          int             `json:"redeemed_count"`
	PartiallyRedeemedCount int             `json:"partially_redeemed_count"`
	TotalCount             int             `json:"total_count"`
}

type cardSavingsPayload struct {
	CardID string          `json:"card_id"`
	Saved  decimal.Decimal `json:"saved"`
}

type anomalyPayload struct {
	Kind      string `json:"kind"`
	BenefitID string `json:"benefit_id,omitempty"`
	Message   string `json:"message"`
}

type transitionPayload struct {
	CardID            string           `json:"card_id"`
	BenefitID         string           `json:"benefit_id"`
	PeriodMonths      int              `json:"period_months"`
	From              string           `json:"from"`
	To                string           `json:"to"`
	PreviousRemaining decimal.Decimal  `json:"previous_remaining"`
	RemainingValue    decimal.Decimal  `json:"remaining_value"`
	Delta             decimal.Decimal  `json:"delta"`
	FirstRedemption   bool             `json:"first_redemption"`
	Anomalies         []anomalyPayload `json:"anomalies"`
}

type cyclePayload struct {
	BenefitID     string    `json:"benefit_id"`
	CycleEndDate  time.Time `json:"cycle_end_date"`
	DaysRemaining int       `json:"days_remaining"`
}

type monthPayload struct {
	MonthYear           string          `json:"month_year"`
	Month               string          `json:"month"`
	IsCurrentMonth      bool            `json:"is_current_month"`
	TotalRedeemedValue  decimal.Decimal `json:"total_redeemed_value"`
	TotalPotentialValue decimal.Decimal `json:"total_potential_value"`
	Values              valuesPayload   `json:"values"`
	MonthlyPerks        valuesPayload   `json:"monthly_perks"`
	PerformanceScore    int             `json:"performance_score"`
	Progress            progressPayload `json:"progress"`
	Perks               []perkPayload   `json:"perks"`
}

type perkPayload struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	CardID           string              `json:"card_id"`
	Status           string              `json:"status"`
	Bucket           string              `json:"bucket"`
	PeriodMonths     int                 `json:"period_months"`
	Value            decimal.Decimal     `json:"value"`
	PartialValue     decimal.NullDecimal `json:"partial_value"`
	ExpiresThisMonth bool                `json:"expires_this_month"`
	ExpiresNextMonth bool                `json:"expires_next_month"`
}

type valuesPayload struct {
	Redeemed  decimal.Decimal `json:"redeemed"`
	Partial   decimal.Decimal `json:"partial"`
	Available decimal.Decimal `json:"available"`
	Missed    decimal.Decimal `json:"missed"`
	Potential decimal.Decimal `json:"potential"`
}

type progressPayload struct {
	RedeemedPercent  float64 `json:"redeemed_percent"`
	PartialPercent   float64 `json:"partial_percent"`
	MissedPercent    float64 `json:"missed_percent"`
	AvailablePercent float64 `json:"available_percent"`
}

type roiPayload struct {
	CardID        string          `json:"card_id"`
	Name          string          `json:"name"`
	TotalRedeemed decimal.Decimal `json:"total_redeemed"`
	AnnualFee     decimal.Decimal `json:"annual_fee"`
	ROIPercentage decimal.Decimal `json:"roi_percentage"`
}

func newSnapshotResponse(snapshot perks.Snapshot) snapshotResponse {
	response := snapshotResponse{
		ComputedAt: snapshot.ComputedAt,
		TotalSaved: snapshot.TotalSaved(),
		Benefits:   make([]benefitPayload, 0, len(snapshot.Statuses)),
		Periods:    make([]periodPayload, 0, len(snapshot.Periods)),
		Cards:      make([]cardSavingsPayload, 0, len(snapshot.CardSavings)),
		Anomalies:  newAnomalyPayloads(snapshot.Anomalies),
	}
	for _, status := range snapshot.Statuses {
		response.Benefits = append(response.Benefits, benefitPayload{
			BenefitID:      status.BenefitID.String(),
			CardID:         status.CardID.String(),
			Status:         status.Status.String(),
			RemainingValue: status.RemainingValue,
		})
	}
	sort.Slice(response.Benefits, func(left, right int) bool {
		return response.Benefits[left].BenefitID < response.Benefits[right].BenefitID
	})
	for period, aggregate := range snapshot.Periods {
		response.Periods = append(response.Periods, periodPayload{
			PeriodMonths:           period.Int(),
			Label:                  period.String(),
			RedeemedValue:          aggregate.RedeemedValue,
			PossibleValue:          aggregate.PossibleValue,
			RedeemedCount:          aggregate.RedeemedCount,
			PartiallyRedeemedCount: aggregate.PartiallyRedeemedCount,
			TotalCount:             aggregate.TotalCount,
		})
	}
	sort.Slice(response.Periods, func(left, right int) bool {
		return response.Periods[left].PeriodMonths < response.Periods[right].PeriodMonths
	})
	for cardID, saved := range snapshot.CardSavings {
		response.Cards = append(response.Cards, cardSavingsPayload{CardID: cardID.String(), Saved: saved})
	}
	sort.Slice(response.Cards, func(left, right int) bool {
		return response.Cards[left].CardID < response.Cards[right].CardID
	})
	return response
}

func newAnomalyPayloads(anomalies []perks.Anomaly) []anomalyPayload {
	payloads := make([]anomalyPayload, 0, len(anomalies))
	for _, anomaly := range anomalies {
		payload := anomalyPayload{Kind: string(anomaly.Kind), BenefitID: anomaly.BenefitID.String()}
		if anomaly.Err != nil {
			payload.Message = anomaly.Err.Error()
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

func newTransitionPayload(transition perks.Transition) transitionPayload {
	return transitionPayload{
		CardID:            transition.CardID.String(),
		BenefitID:         transition.BenefitID.String(),
		PeriodMonths:      transition.PeriodMonths.Int(),
		From:              transition.From.String(),
		To:                transition.To.String(),
		PreviousRemaining: transition.PreviousRemaining,
		RemainingValue:    transition.RemainingValue,
		Delta:             transition.Delta,
		FirstRedemption:   transition.FirstRedemption,
		Anomalies:         newAnomalyPayloads(transition.Anomalies),
	}
}

func newMonthPayload(summary insights.MonthlyRedemptionSummary, onlyRelevant bool, now time.Time) monthPayload {
	isCurrentMonth := insights.IsCurrentMonth(summary, now)
	values := insights.CalculateRedemptionValues(summary, onlyRelevant, isCurrentMonth)
	progress := insights.Progress(values)
	payload := monthPayload{
		MonthYear:           summary.MonthYear,
		Month:               summary.Month.Format(monthLayout),
		IsCurrentMonth:      isCurrentMonth,
		TotalRedeemedValue:  summary.TotalRedeemedValue,
		TotalPotentialValue: summary.TotalPotentialValue,
		Values:              newValuesPayload(values),
		MonthlyPerks:        newValuesPayload(insights.CalculateMonthlyPerksOnly(summary)),
		PerformanceScore:    insights.PerformanceScore(summary, isCurrentMonth),
		Progress: progressPayload{
			RedeemedPercent:  progress.RedeemedPercent,
			PartialPercent:   progress.PartialPercent,
			MissedPercent:    progress.MissedPercent,
			AvailablePercent: progress.AvailablePercent,
		},
		Perks: make([]perkPayload, 0, len(summary.PerkDetails)),
	}
	for _, detail := range summary.PerkDetails {
		payload.Perks = append(payload.Perks, perkPayload{
			ID:               detail.ID.String(),
			Name:             detail.Name,
			CardID:           detail.CardID.String(),
			Status:           string(detail.Status),
			Bucket:           string(insights.Classify(detail, isCurrentMonth)),
			PeriodMonths:     detail.Period.Int(),
			Value:            detail.Value,
			PartialValue:     detail.PartialValue,
			ExpiresThisMonth: detail.ExpiresThisMonth,
			ExpiresNextMonth: detail.ExpiresNextMonth,
		})
	}
	return payload
}

func newValuesPayload(values insights.RedemptionValues) valuesPayload {
	return valuesPayload{
		Redeemed:  values.RedeemedValue,
		Partial:   values.PartialValue,
		Available: values.AvailableValue,
		Missed:    values.MissedValue,
		Potential: values.PotentialValue,
	}
}

func newROIPayloads(entries []insights.CardROI) []roiPayload {
	payloads := make([]roiPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, roiPayload{
			CardID:        entry.ID.String(),
			Name:          entry.Name,
			TotalRedeemed: entry.TotalRedeemed,
			AnnualFee:     entry.AnnualFee,
			ROIPercentage: entry.ROIPercentage,
		})
	}
	return payloads
}
