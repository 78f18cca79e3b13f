package ports

import (
	"context"
	"time"

	"github.com/novalabs/billing-service/internal/domain"
)

// Receipt is the payload of a successful-charge notification.
type Receipt struct {
	OrderID    string      `json:"order_id"`
	Amount     int64       `json:"amount"`
	Method     string      `json:"method"`
	ApprovedAt time.Time   `json:"approved_at"`
	Plan       domain.Plan `json:"plan"`
}

// FailureNotice is the payload of a failed-charge or suspension
// notification.
type FailureNotice struct {
	Reason        string     `json:"reason"`
	FailureCount  int        `json:"failure_count"`
	NextRetryDate *time.Time `json:"next_retry_date,omitempty"`
	Suspended     bool       `json:"suspended"`
}

// Notifier dispatches customer-facing billing emails. Both calls are
// fire-and-forget from the caller's perspective: errors are logged and
// never affect the billing outcome.
type Notifier interface {
	SendReceipt(ctx context.Context, accountID string, receipt Receipt) error
	SendFailureNotice(ctx context.Context, accountID string, notice FailureNotice) error
}
