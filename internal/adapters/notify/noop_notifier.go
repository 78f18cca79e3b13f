package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/novalabs/billing-service/internal/domain/ports"
)

// NoopNotifier implements ports.Notifier without a broker. Used when no
// AMQP URL is configured; events are logged and dropped.
type NoopNotifier struct {
	logger *zap.Logger
}

// NewNoopNotifier creates a notifier that only logs
func NewNoopNotifier(logger *zap.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger}
}

func (n *NoopNotifier) SendReceipt(ctx context.Context, accountID string, receipt ports.Receipt) error {
	n.logger.Info("receipt notification dropped, no broker configured",
		zap.String("account_id", accountID),
		zap.String("order_id", receipt.OrderID),
	)
	return nil
}

func (n *NoopNotifier) SendFailureNotice(ctx context.Context, accountID string, notice ports.FailureNotice) error {
	n.logger.Info("failure notification dropped, no broker configured",
		zap.String("account_id", accountID),
		zap.String("reason", notice.Reason),
	)
	return nil
}
