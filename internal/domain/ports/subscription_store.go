package ports

import (
	"context"
	"time"

	"github.com/novalabs/billing-service/internal/domain"
)

// SuccessUpdate describes the state applied to a subscription after a
// successful charge. The store must apply the whole update, including the
// account usage reset, as a single per-document write.
type SuccessUpdate struct {
	NextBillingDate time.Time
	PaidAt          time.Time
	OrderID         string
}

// FailureUpdate describes the state applied after a failed charge, as
// decided by the retry policy. NextRetryDate is nil when the subscription
// is being suspended.
type FailureUpdate struct {
	FailureCount  int
	Status        domain.SubscriptionStatus
	Reason        string
	FailedAt      time.Time
	NextRetryDate *time.Time
}

// CheckoutActivation describes the subscription state established by a
// confirmed one-shot checkout. It does not create a recurring mandate;
// IsRecurring is always written false.
type CheckoutActivation struct {
	Plan         domain.Plan
	BillingCycle domain.BillingCycle
	Amount       int64
	PaidAt       time.Time
	OrderID      string
}

// SubscriptionStore reads and writes the subscription embedded in an
// account record. Every mutation is atomic per account document: a crash
// between fields can never leave a partially applied update.
type SubscriptionStore interface {
	Load(ctx context.Context, accountID string) (*domain.Subscription, error)

	// ListDue returns active recurring subscriptions whose next billing
	// date is at or before asOf, up to limit.
	ListDue(ctx context.Context, asOf time.Time, limit int32) ([]*domain.Subscription, error)

	// ApplySuccess advances the billing date, clears failure state, and as
	// a coupled side effect zeroes the account's usage counter and stamps
	// the usage-reset timestamp.
	ApplySuccess(ctx context.Context, accountID string, update SuccessUpdate) error

	ApplyFailure(ctx context.Context, accountID string, update FailureUpdate) error

	ActivateFromCheckout(ctx context.Context, accountID string, activation CheckoutActivation) error

	// ApplyRefund marks the subscription refunded and clears the recurring
	// mandate.
	ApplyRefund(ctx context.Context, accountID string, at time.Time) error

	// Cancel ends the recurring mandate at the customer's request.
	Cancel(ctx context.Context, accountID string, at time.Time) error

	// Reactivate resets failure state after the customer updates their
	// card; the next sweep picks the subscription up immediately.
	Reactivate(ctx context.Context, accountID, billingKey, customerKey string, at time.Time) error
}
