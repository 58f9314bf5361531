package perks

import (
	"context"

	"github.com/shopspring/decimal"
)

// TrackerOption configures a Tracker instance.
type TrackerOption func(*Tracker)

// FirstRedemptionHook is notified once, the first time a user ever redeems a benefit.
type FirstRedemptionHook func(ctx context.Context, userID UserID) error

// OperationLogger records domain-level events emitted by Tracker operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a refresh or a status change.
type OperationLog struct {
	Operation string
	UserID    UserID
	CardID    CardID
	BenefitID BenefitID
	From      RedemptionStatus
	To        RedemptionStatus
	Delta     decimal.Decimal
	Anomalies []Anomaly
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) TrackerOption {
	return func(tracker *Tracker) {
		tracker.logger = logger
	}
}

// WithFirstRedemptionHook wires the best-effort first redemption notification.
func WithFirstRedemptionHook(hook FirstRedemptionHook) TrackerOption {
	return func(tracker *Tracker) {
		tracker.firstRedemptionHook = hook
	}
}
