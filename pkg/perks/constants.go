package perks

const (
	operationRefresh   = "refresh"
	operationSetStatus = "set_status"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorOperationTracker = "tracker"
	errorSubjectCatalog   = "catalog"
	errorSubjectLedger    = "ledger"
	errorSubjectBenefit   = "benefit"
	errorCodeFetch        = "fetch"
	errorCodeUnknown      = "unknown"
	errorCodeMissingCycle = "missing_period"
	errorCodeCardMismatch = "card_mismatch"
)
