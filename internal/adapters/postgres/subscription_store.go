package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/novalabs/billing-service/internal/domain"
	"github.com/novalabs/billing-service/internal/domain/ports"
)

// SubscriptionStore implements ports.SubscriptionStore over the accounts
// table. The subscription lives embedded in the account row, so every
// mutation is a single-row UPDATE and therefore atomic: a crash can never
// leave a half-applied billing update.
type SubscriptionStore struct {
	db *DB
}

// NewSubscriptionStore creates a new subscription store
func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

const subscriptionColumns = `
	id, plan, billing_key, customer_key, is_recurring, billing_cycle,
	amount, subscription_status, next_billing_date, failure_count,
	last_failure_reason, last_failure_date, last_payment_date, last_order_id`

// Load retrieves the subscription embedded in an account record.
func (s *SubscriptionStore) Load(ctx context.Context, accountID string) (*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM accounts
		WHERE id = $1`

	row := s.db.Pool().QueryRow(ctx, query, accountID)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "load subscription", err)
	}
	return sub, nil
}

// ListDue returns active recurring subscriptions due at or before asOf.
// Rows are ordered oldest due date first so a capped batch drains the
// backlog in arrival order.
func (s *SubscriptionStore) ListDue(ctx context.Context, asOf time.Time, limit int32) ([]*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM accounts
		WHERE subscription_status = $1
		  AND is_recurring = TRUE
		  AND next_billing_date IS NOT NULL
		  AND next_billing_date <= $2
		ORDER BY next_billing_date ASC
		LIMIT $3`

	rows, err := s.db.Pool().Query(ctx, query, string(domain.SubscriptionStatusActive), asOf, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list due subscriptions", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan subscription row", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "iterate due subscriptions", err)
	}
	return subs, nil
}

// ApplySuccess advances the billing date, clears failure state, and zeroes
// the account usage counter in one statement.
func (s *SubscriptionStore) ApplySuccess(ctx context.Context, accountID string, update ports.SuccessUpdate) error {
	query := `UPDATE accounts SET
			next_billing_date = $2,
			last_payment_date = $3,
			last_order_id = $4,
			failure_count = 0,
			last_failure_reason = NULL,
			last_failure_date = NULL,
			current_usage = 0,
			usage_reset_at = $3,
			updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Pool().Exec(ctx, query, accountID,
		timestamptz(update.NextBillingDate),
		timestamptz(update.PaidAt),
		update.OrderID,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "apply charge success", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// ApplyFailure records a failed charge attempt as decided by the retry
// policy. A nil NextRetryDate clears the billing date, which is how a
// suspension takes the subscription out of every future sweep.
func (s *SubscriptionStore) ApplyFailure(ctx context.Context, accountID string, update ports.FailureUpdate) error {
	query := `UPDATE accounts SET
			failure_count = $2,
			subscription_status = $3,
			last_failure_reason = $4,
			last_failure_date = $5,
			next_billing_date = $6,
			updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Pool().Exec(ctx, query, accountID,
		update.FailureCount,
		string(update.Status),
		nullText(update.Reason),
		timestamptz(update.FailedAt),
		nullTimestamptz(update.NextRetryDate),
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "apply charge failure", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// ActivateFromCheckout applies a confirmed one-shot checkout. The purchase
// grants a fixed paid period without a recurring mandate, so is_recurring
// is always written false and no billing date is scheduled.
func (s *SubscriptionStore) ActivateFromCheckout(ctx context.Context, accountID string, activation ports.CheckoutActivation) error {
	query := `UPDATE accounts SET
			plan = $2,
			billing_cycle = $3,
			amount = $4,
			subscription_status = $5,
			is_recurring = FALSE,
			next_billing_date = NULL,
			failure_count = 0,
			last_failure_reason = NULL,
			last_failure_date = NULL,
			last_payment_date = $6,
			last_order_id = $7,
			current_usage = 0,
			usage_reset_at = $6,
			updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Pool().Exec(ctx, query, accountID,
		string(activation.Plan),
		string(activation.BillingCycle),
		activation.Amount,
		string(domain.SubscriptionStatusActive),
		timestamptz(activation.PaidAt),
		activation.OrderID,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "activate from checkout", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// ApplyRefund marks the subscription refunded and ends the recurring
// mandate.
func (s *SubscriptionStore) ApplyRefund(ctx context.Context, accountID string, at time.Time) error {
	return s.terminate(ctx, accountID, domain.SubscriptionStatusRefunded, at)
}

// Cancel ends the recurring mandate at the customer's request. The plan
// and payment history are left untouched.
func (s *SubscriptionStore) Cancel(ctx context.Context, accountID string, at time.Time) error {
	return s.terminate(ctx, accountID, domain.SubscriptionStatusCancelled, at)
}

func (s *SubscriptionStore) terminate(ctx context.Context, accountID string, status domain.SubscriptionStatus, at time.Time) error {
	query := `UPDATE accounts SET
			subscription_status = $2,
			is_recurring = FALSE,
			next_billing_date = NULL,
			updated_at = $3
		WHERE id = $1`

	tag, err := s.db.Pool().Exec(ctx, query, accountID, string(status), timestamptz(at))
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, fmt.Sprintf("set subscription %s", status), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// Reactivate installs fresh billing credentials and clears failure state.
// The billing date is set to at, so the next sweep charges immediately.
func (s *SubscriptionStore) Reactivate(ctx context.Context, accountID, billingKey, customerKey string, at time.Time) error {
	query := `UPDATE accounts SET
			billing_key = $2,
			customer_key = $3,
			subscription_status = $4,
			is_recurring = TRUE,
			failure_count = 0,
			last_failure_reason = NULL,
			last_failure_date = NULL,
			next_billing_date = $5,
			updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Pool().Exec(ctx, query, accountID,
		billingKey,
		customerKey,
		string(domain.SubscriptionStatusActive),
		timestamptz(at),
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "reactivate subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub               domain.Subscription
		plan              string
		billingKey        pgtype.Text
		customerKey       pgtype.Text
		billingCycle      pgtype.Text
		status            string
		nextBillingDate   pgtype.Timestamptz
		lastFailureReason pgtype.Text
		lastFailureDate   pgtype.Timestamptz
		lastPaymentDate   pgtype.Timestamptz
		lastOrderID       pgtype.Text
	)

	err := row.Scan(
		&sub.AccountID,
		&plan,
		&billingKey,
		&customerKey,
		&sub.IsRecurring,
		&billingCycle,
		&sub.Amount,
		&status,
		&nextBillingDate,
		&sub.FailureCount,
		&lastFailureReason,
		&lastFailureDate,
		&lastPaymentDate,
		&lastOrderID,
	)
	if err != nil {
		return nil, err
	}

	sub.Plan = domain.Plan(plan)
	sub.BillingKey = textValue(billingKey)
	sub.CustomerKey = textValue(customerKey)
	sub.BillingCycle = domain.BillingCycle(textValue(billingCycle))
	sub.Status = domain.SubscriptionStatus(status)
	sub.NextBillingDate = timePtr(nextBillingDate)
	sub.LastFailureReason = textValue(lastFailureReason)
	sub.LastFailureDate = timePtr(lastFailureDate)
	sub.LastPaymentDate = timePtr(lastPaymentDate)
	sub.LastOrderID = textValue(lastOrderID)
	return &sub, nil
}
