package domain

import "time"

// PaymentStatus represents the ledger state of a payment record
type PaymentStatus string

const (
	PaymentStatusDone            PaymentStatus = "DONE"
	PaymentStatusRefunded        PaymentStatus = "REFUNDED"
	PaymentStatusPartialRefunded PaymentStatus = "PARTIAL_REFUNDED"
)

// PaymentRecord is an append-only fact about a captured payment, keyed by
// the gateway-assigned payment key. The key's global uniqueness is the
// sole defense against double-booking a charge: every retry path must
// either upsert by this key or rely on the gateway's own duplicate signal.
//
// Records are created once and later mutated only to flip Status to a
// refunded state and attach refund metadata.
type PaymentRecord struct {
	PaymentKey   string        `json:"payment_key"`
	AccountID    string        `json:"account_id"`
	OrderID      string        `json:"order_id"`
	Amount       int64         `json:"amount"`
	OrderName    string        `json:"order_name"`
	Method       string        `json:"method"`
	Status       PaymentStatus `json:"status"`
	ApprovedAt   time.Time     `json:"approved_at"`
	CardNumber   string        `json:"card_number,omitempty"` // masked descriptor, never the PAN
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty"`
	CancelAmount int64         `json:"cancel_amount,omitempty"`
	CancelReason string        `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RefundMeta carries the refund details attached to a payment record when
// its status flips to REFUNDED.
type RefundMeta struct {
	CancelledAt  time.Time
	CancelAmount int64
	CancelReason string
	Partial      bool
}

// IsRefunded returns true once the record has been refunded in full or in part.
func (r *PaymentRecord) IsRefunded() bool {
	return r.Status == PaymentStatusRefunded || r.Status == PaymentStatusPartialRefunded
}
