package perks

// ReduceToLatestPerBenefit keeps the most recent event per benefit by
// redemption date. Events with equal dates resolve to the one appearing last.
func ReduceToLatestPerBenefit(events []RedemptionEvent) map[BenefitID]RedemptionEvent {
	latest := make(map[BenefitID]RedemptionEvent, len(events))
	for _, event := range events {
		current, exists := latest[event.BenefitID]
		if exists && event.RedemptionDate.Before(current.RedemptionDate) {
			continue
		}
		latest[event.BenefitID] = event
	}
	return latest
}
