package ports

import (
	"context"
	"time"
)

// ChargeRequest describes a single charge attempt against a stored
// billing key. OrderID is caller-assigned and locally unique per attempt;
// it is not an idempotency key toward the gateway.
type ChargeRequest struct {
	BillingKey  string
	CustomerKey string
	Amount      int64
	OrderID     string
	OrderName   string
}

// ConfirmRequest carries the three identifiers the gateway requires to
// confirm a client-initiated checkout.
type ConfirmRequest struct {
	PaymentKey string
	OrderID    string
	Amount     int64
}

// ChargeResult is the normalized successful outcome of a charge, confirm,
// or cancel call.
type ChargeResult struct {
	PaymentKey  string
	OrderID     string
	Amount      int64
	ApprovedAt  time.Time
	Method      string
	CardNumber  string // masked descriptor
	CancelledAt *time.Time
}

// ChargeGateway wraps the payment gateway's billing-key API. Failures are
// returned as errors normalized into pkg/errors.PaymentError; the gateway
// adapter never retries internally.
type ChargeGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*ChargeResult, error)
	Cancel(ctx context.Context, paymentKey, reason string) (*ChargeResult, error)
}
