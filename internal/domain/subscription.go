package domain

import (
	"time"

	"github.com/novalabs/billing-service/pkg/timeutil"
)

// SubscriptionStatus represents the subscription state
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusRefunded  SubscriptionStatus = "refunded"
)

// BillingCycle defines the charge interval of a subscription.
// The test cycle runs on a 60-second interval so the full billing loop can
// be exercised in short-lived environments.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
	CycleTest    BillingCycle = "test"
)

// Interval returns the duration added to the billing date after a
// successful charge.
func (c BillingCycle) Interval() time.Duration {
	switch c {
	case CycleYearly:
		return 365 * 24 * time.Hour
	case CycleTest:
		return 60 * time.Second
	default:
		return 30 * 24 * time.Hour
	}
}

// Subscription is the billing state embedded in an account record.
// There is exactly one subscription per account; it is created at signup
// with PlanFree and destroyed with the account.
type Subscription struct {
	AccountID         string             `json:"account_id"`
	Plan              Plan               `json:"plan"`
	BillingKey        string             `json:"billing_key"`
	CustomerKey       string             `json:"customer_key"`
	IsRecurring       bool               `json:"is_recurring"`
	BillingCycle      BillingCycle       `json:"billing_cycle"`
	Amount            int64              `json:"amount"`
	Status            SubscriptionStatus `json:"status"`
	NextBillingDate   *time.Time         `json:"next_billing_date"`
	FailureCount      int                `json:"failure_count"`
	LastFailureReason string             `json:"last_failure_reason,omitempty"`
	LastFailureDate   *time.Time         `json:"last_failure_date,omitempty"`
	LastPaymentDate   *time.Time         `json:"last_payment_date,omitempty"`
	LastOrderID       string             `json:"last_order_id,omitempty"`
}

// IsActive returns true if the subscription is currently active
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IsEligible reports whether the subscription qualifies for an automatic
// charge as of the given sweep time: active, recurring, and due.
func (s *Subscription) IsEligible(asOf time.Time) bool {
	if !s.IsActive() || !s.IsRecurring || s.NextBillingDate == nil {
		return false
	}
	return !s.NextBillingDate.After(asOf)
}

// HasBillingCredentials reports whether the fields required to execute a
// charge are present. A due subscription missing any of these is a
// data-integrity problem, not a payment failure.
func (s *Subscription) HasBillingCredentials() bool {
	return s.BillingKey != "" && s.CustomerKey != "" && s.Amount > 0
}

// NextCycleDate returns the billing date that follows a successful charge
// at the given time.
func (s *Subscription) NextCycleDate(from time.Time) time.Time {
	return timeutil.ToUTC(from.Add(s.BillingCycle.Interval()))
}
