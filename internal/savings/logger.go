package savings

import (
	"context"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"go.uber.org/zap"
)

// ZapOperationLogger writes tracker operations and their anomalies to zap.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger adapts logger to perks.OperationLogger.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

func (adapter *ZapOperationLogger) LogOperation(_ context.Context, entry perks.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
	}
	if entry.BenefitID.String() != "" {
		fields = append(fields,
			zap.String("card_id", entry.CardID.String()),
			zap.String("benefit_id", entry.BenefitID.String()),
			zap.String("from", entry.From.String()),
			zap.String("to", entry.To.String()),
			zap.String("delta", entry.Delta.String()),
		)
	}
	if entry.Error != nil {
		adapter.logger.Error("perk operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	adapter.logger.Info("perk operation", fields...)
	for _, anomaly := range entry.Anomalies {
		anomalyFields := append(append([]zap.Field(nil), fields...),
			zap.String("anomaly", string(anomaly.Kind)),
			zap.String("anomaly_benefit_id", anomaly.BenefitID.String()),
			zap.Error(anomaly.Err),
		)
		if anomaly.Kind == perks.AnomalyUnrecognizedPeriod {
			adapter.logger.Error("perk data anomaly", anomalyFields...)
			continue
		}
		adapter.logger.Warn("perk data anomaly", anomalyFields...)
	}
}
