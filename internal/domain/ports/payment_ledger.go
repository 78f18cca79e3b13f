package ports

import (
	"context"

	"github.com/novalabs/billing-service/internal/domain"
)

// PaymentLedger is the append-only payment history of an account, keyed
// by the gateway-assigned payment key.
type PaymentLedger interface {
	// Append upserts a record by payment key. Replays of the same key are
	// harmless by design; the last write wins on the mutable fields.
	Append(ctx context.Context, record *domain.PaymentRecord) error

	// Get performs a point lookup for refund and duplicate detection.
	Get(ctx context.Context, accountID, paymentKey string) (*domain.PaymentRecord, error)

	// ListRecent returns up to limit records ordered by approval time
	// descending. Implementations must tolerate records lacking the sort
	// field and fall back to an unordered scan rather than fail.
	ListRecent(ctx context.Context, accountID string, limit int32) ([]*domain.PaymentRecord, error)

	// MarkRefunded flips a record's status to REFUNDED (or
	// PARTIAL_REFUNDED) and attaches refund metadata.
	MarkRefunded(ctx context.Context, accountID, paymentKey string, meta domain.RefundMeta) error
}
