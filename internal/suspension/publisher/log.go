package publisher

import (
	"context"

	suspensiondomain "github.com/smallbiznis/computeledger/internal/suspension/domain"
	"go.uber.org/zap"
)

type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("suspension.publisher")}
}

func (p *LogPublisher) Publish(_ context.Context, signal suspensiondomain.Signal) error {
	p.log.Warn("billing signal",
		zap.String("signal_id", signal.ID),
		zap.String("action", string(signal.Action)),
		zap.String("tenant_id", signal.TenantID),
		zap.String("reason", signal.Reason),
		zap.String("balance", signal.Balance),
		zap.String("currency", signal.Currency),
	)
	return nil
}
