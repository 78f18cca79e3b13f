// Package checkout implements the client-initiated payment flows: the
// post-redirect confirmation, refunds, payment history, and the customer
// subscription actions. The billing sweep in services/billing never calls
// into this package; the two flows share only the ports.
package checkout

import (
	"context"
	"time"

	"github.com/novalabs/billing-service/internal/adapters/ports"
	"github.com/novalabs/billing-service/internal/domain"
	domainports "github.com/novalabs/billing-service/internal/domain/ports"
	pkgerrors "github.com/novalabs/billing-service/pkg/errors"
	"github.com/novalabs/billing-service/pkg/observability"
	"github.com/novalabs/billing-service/pkg/timeutil"
)

// ConfirmedResult is the outcome of a checkout confirmation. Duplicate
// confirmations of an already-captured payment succeed with
// AlreadyProcessed set; callers render both shapes as success.
type ConfirmedResult struct {
	PaymentKey       string              `json:"payment_key"`
	OrderID          string              `json:"order_id"`
	Amount           int64               `json:"amount"`
	Plan             domain.Plan         `json:"plan"`
	BillingCycle     domain.BillingCycle `json:"billing_cycle"`
	ApprovedAt       time.Time           `json:"approved_at"`
	AlreadyProcessed bool                `json:"already_processed"`
}

// RefundResult reports a completed refund.
type RefundResult struct {
	PaymentKey   string    `json:"payment_key"`
	CancelAmount int64     `json:"cancel_amount"`
	CancelledAt  time.Time `json:"cancelled_at"`
}

// Service implements the checkout flows.
type Service struct {
	gateway  domainports.ChargeGateway
	store    domainports.SubscriptionStore
	ledger   domainports.PaymentLedger
	notifier domainports.Notifier
	logger   ports.Logger
}

// NewService creates a new checkout service
func NewService(
	gateway domainports.ChargeGateway,
	store domainports.SubscriptionStore,
	ledger domainports.PaymentLedger,
	notifier domainports.Notifier,
	logger ports.Logger,
) *Service {
	return &Service{
		gateway:  gateway,
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
	}
}

// Confirm finalizes a checkout after the gateway redirects the customer
// back. The call is not exactly-once: browser retries and double-clicks
// replay it, and the gateway's "already processed" answer is absorbed as
// success. Every side effect on the replay path is idempotent, keyed by
// the payment key.
func (s *Service) Confirm(ctx context.Context, paymentKey, orderID string, amount int64, accountID string) (*ConfirmedResult, error) {
	if paymentKey == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "payment key is required")
	}
	if orderID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "order id is required")
	}
	if amount <= 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "amount must be positive")
	}

	// The paid plan is derived from the amount, so an amount that matches
	// no catalog price is rejected before any money moves.
	plan, cycle, ok := domain.PlanForAmount(amount)
	if !ok {
		observability.RecordConfirm("error")
		return nil, domain.NewDomainError(domain.ErrorCodeValidationAmountUnknown,
			"amount does not match any plan price").WithDetail("amount", amount)
	}

	chargeResult, err := s.gateway.Confirm(ctx, domainports.ConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    orderID,
		Amount:     amount,
	})

	if err != nil {
		if pkgerrors.IsDuplicate(err) {
			return s.absorbDuplicate(ctx, paymentKey, orderID, amount, accountID, plan, cycle)
		}
		if pe, ok := pkgerrors.AsPaymentError(err); ok && pe.Category == pkgerrors.CategoryDeclined {
			observability.RecordConfirm("declined")
		} else {
			observability.RecordConfirm("error")
		}
		return nil, err
	}

	record := &domain.PaymentRecord{
		PaymentKey: chargeResult.PaymentKey,
		AccountID:  accountID,
		OrderID:    chargeResult.OrderID,
		Amount:     chargeResult.Amount,
		OrderName:  planOrderName(plan, cycle),
		Method:     chargeResult.Method,
		Status:     domain.PaymentStatusDone,
		ApprovedAt: chargeResult.ApprovedAt,
		CardNumber: chargeResult.CardNumber,
	}
	if err := s.ledger.Append(ctx, record); err != nil {
		s.logger.Error("failed to append confirmed payment",
			ports.String("payment_key", paymentKey),
			ports.Err(err),
		)
	}

	if err := s.activate(ctx, accountID, plan, cycle, amount, chargeResult.ApprovedAt, orderID); err != nil {
		return nil, err
	}

	s.sendReceipt(ctx, accountID, plan, chargeResult)
	observability.RecordConfirm("confirmed")

	s.logger.Info("checkout confirmed",
		ports.String("payment_key", paymentKey),
		ports.String("order_id", orderID),
		ports.Int64("amount", amount),
	)

	return &ConfirmedResult{
		PaymentKey:   paymentKey,
		OrderID:      orderID,
		Amount:       amount,
		Plan:         plan,
		BillingCycle: cycle,
		ApprovedAt:   chargeResult.ApprovedAt,
	}, nil
}

// absorbDuplicate turns the gateway's already-processed signal into a
// successful result. The payment was captured by an earlier call; this
// replay only has to make sure the idempotent side effects landed.
func (s *Service) absorbDuplicate(ctx context.Context, paymentKey, orderID string, amount int64, accountID string, plan domain.Plan, cycle domain.BillingCycle) (*ConfirmedResult, error) {
	approvedAt := timeutil.Now()

	if accountID != "" {
		existing, err := s.ledger.Get(ctx, accountID, paymentKey)
		if err == nil {
			approvedAt = existing.ApprovedAt
		} else {
			// The earlier call captured the payment but its ledger write was
			// lost. Reconstruct the record from the confirm parameters.
			record := &domain.PaymentRecord{
				PaymentKey: paymentKey,
				AccountID:  accountID,
				OrderID:    orderID,
				Amount:     amount,
				OrderName:  planOrderName(plan, cycle),
				Status:     domain.PaymentStatusDone,
				ApprovedAt: approvedAt,
			}
			if appendErr := s.ledger.Append(ctx, record); appendErr != nil {
				s.logger.Error("failed to backfill payment record on duplicate confirm",
					ports.String("payment_key", paymentKey),
					ports.Err(appendErr),
				)
			}
		}

		if err := s.activate(ctx, accountID, plan, cycle, amount, approvedAt, orderID); err != nil {
			return nil, err
		}
	}

	observability.RecordConfirm("already_processed")

	s.logger.Info("duplicate checkout confirmation absorbed",
		ports.String("payment_key", paymentKey),
		ports.String("order_id", orderID),
	)

	return &ConfirmedResult{
		PaymentKey:       paymentKey,
		OrderID:          orderID,
		Amount:           amount,
		Plan:             plan,
		BillingCycle:     cycle,
		ApprovedAt:       approvedAt,
		AlreadyProcessed: true,
	}, nil
}

func (s *Service) activate(ctx context.Context, accountID string, plan domain.Plan, cycle domain.BillingCycle, amount int64, paidAt time.Time, orderID string) error {
	if accountID == "" {
		// Anonymous confirmation: the ledger entry exists, the account link
		// happens later through a support flow.
		return nil
	}

	activation := domainports.CheckoutActivation{
		Plan:         plan,
		BillingCycle: cycle,
		Amount:       amount,
		PaidAt:       paidAt,
		OrderID:      orderID,
	}
	if err := s.store.ActivateFromCheckout(ctx, accountID, activation); err != nil {
		s.logger.Error("failed to activate subscription from checkout",
			ports.String("account_id", accountID),
			ports.Err(err),
		)
		return err
	}
	return nil
}

func (s *Service) sendReceipt(ctx context.Context, accountID string, plan domain.Plan, chargeResult *domainports.ChargeResult) {
	if accountID == "" {
		return
	}
	receipt := domainports.Receipt{
		OrderID:    chargeResult.OrderID,
		Amount:     chargeResult.Amount,
		Method:     chargeResult.Method,
		ApprovedAt: chargeResult.ApprovedAt,
		Plan:       plan,
	}
	if err := s.notifier.SendReceipt(ctx, accountID, receipt); err != nil {
		s.logger.Error("failed to send checkout receipt",
			ports.String("account_id", accountID),
			ports.Err(err),
		)
	}
}

// Refund cancels a captured payment and marks both the ledger record and
// the subscription refunded. A second refund of the same payment is
// rejected before the gateway is called.
func (s *Service) Refund(ctx context.Context, accountID, paymentKey, reason string) (*RefundResult, error) {
	if accountID == "" || paymentKey == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "account id and payment key are required")
	}
	if reason == "" {
		reason = "customer requested refund"
	}

	record, err := s.ledger.Get(ctx, accountID, paymentKey)
	if err != nil {
		return nil, err
	}
	if record.IsRefunded() {
		return nil, domain.NewDomainError(domain.ErrorCodePaymentAlreadyRefunded,
			"payment has already been refunded").WithDetail("payment_key", paymentKey)
	}

	cancelResult, err := s.gateway.Cancel(ctx, paymentKey, reason)
	if err != nil {
		return nil, err
	}

	cancelledAt := timeutil.Now()
	if cancelResult.CancelledAt != nil {
		cancelledAt = *cancelResult.CancelledAt
	}

	meta := domain.RefundMeta{
		CancelledAt:  cancelledAt,
		CancelAmount: record.Amount,
		CancelReason: reason,
	}
	if err := s.ledger.MarkRefunded(ctx, accountID, paymentKey, meta); err != nil {
		return nil, err
	}

	if err := s.store.ApplyRefund(ctx, accountID, cancelledAt); err != nil {
		s.logger.Error("payment refunded but subscription update failed",
			ports.String("account_id", accountID),
			ports.String("payment_key", paymentKey),
			ports.Err(err),
		)
		return nil, err
	}

	s.logger.Info("payment refunded",
		ports.String("account_id", accountID),
		ports.String("payment_key", paymentKey),
		ports.Int64("amount", record.Amount),
	)

	return &RefundResult{
		PaymentKey:   paymentKey,
		CancelAmount: record.Amount,
		CancelledAt:  cancelledAt,
	}, nil
}

// ListPayments returns the account's recent payment history.
func (s *Service) ListPayments(ctx context.Context, accountID string, limit int32) ([]*domain.PaymentRecord, error) {
	if accountID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "account id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.ledger.ListRecent(ctx, accountID, limit)
}

// CancelSubscription ends the recurring mandate. The paid period already
// granted stays in effect; only future charges stop.
func (s *Service) CancelSubscription(ctx context.Context, accountID string) error {
	if accountID == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "account id is required")
	}

	sub, err := s.store.Load(ctx, accountID)
	if err != nil {
		return err
	}
	if !sub.IsRecurring && !sub.IsActive() {
		return domain.NewDomainError(domain.ErrorCodeSubNotActive,
			"subscription is not active").WithDetail("status", string(sub.Status))
	}

	if err := s.store.Cancel(ctx, accountID, timeutil.Now()); err != nil {
		return err
	}

	s.logger.Info("subscription cancelled",
		ports.String("account_id", accountID),
		ports.String("plan", string(sub.Plan)),
	)
	return nil
}

// ReactivateSubscription installs fresh billing credentials after the
// customer updates their card. Failure state is cleared and the next
// sweep charges immediately.
func (s *Service) ReactivateSubscription(ctx context.Context, accountID, billingKey, customerKey string) error {
	if accountID == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "account id is required")
	}
	if billingKey == "" || customerKey == "" {
		return domain.ErrMissingBillingData
	}

	if _, err := s.store.Load(ctx, accountID); err != nil {
		return err
	}

	if err := s.store.Reactivate(ctx, accountID, billingKey, customerKey, timeutil.Now()); err != nil {
		return err
	}

	s.logger.Info("subscription reactivated",
		ports.String("account_id", accountID),
	)
	return nil
}

func planOrderName(plan domain.Plan, cycle domain.BillingCycle) string {
	return "Nova " + plan.Title() + " (" + string(cycle) + ")"
}
