package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/novalabs/billing-service/internal/adapters/ports"
	"github.com/novalabs/billing-service/internal/domain"
	domainports "github.com/novalabs/billing-service/internal/domain/ports"
	"github.com/novalabs/billing-service/pkg/observability"
	"github.com/novalabs/billing-service/pkg/timeutil"
)

// ChargeExecutor wraps a single outbound charge against the gateway. It
// generates a fresh order ID per attempt: each sweep invocation is a
// genuinely new charge, not a gateway-level retry of a previous one, so
// the order ID is deliberately not stable across attempts.
type ChargeExecutor struct {
	gateway domainports.ChargeGateway
	logger  ports.Logger
}

// NewChargeExecutor creates a new charge executor
func NewChargeExecutor(gateway domainports.ChargeGateway, logger ports.Logger) *ChargeExecutor {
	return &ChargeExecutor{
		gateway: gateway,
		logger:  logger,
	}
}

// NewOrderID generates a locally-unique order identifier from the current
// time and a random suffix.
func NewOrderID(at time.Time) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("sub_%s_%s", at.UTC().Format("20060102T150405"), suffix)
}

// OrderName renders the customer-visible line item for a subscription
// charge.
func OrderName(plan domain.Plan, cycle domain.BillingCycle) string {
	return fmt.Sprintf("Nova %s (%s)", plan.Title(), cycle)
}

// Execute performs one charge attempt for a due subscription. The
// returned error is already normalized by the gateway adapter; the
// executor never retries.
func (e *ChargeExecutor) Execute(ctx context.Context, sub *domain.Subscription) (*domainports.ChargeResult, error) {
	orderID := NewOrderID(timeutil.Now())

	req := domainports.ChargeRequest{
		BillingKey:  sub.BillingKey,
		CustomerKey: sub.CustomerKey,
		Amount:      sub.Amount,
		OrderID:     orderID,
		OrderName:   OrderName(sub.Plan, sub.BillingCycle),
	}

	e.logger.Info("executing subscription charge",
		ports.String("account_id", sub.AccountID),
		ports.String("order_id", orderID),
		ports.Int64("amount", sub.Amount),
	)

	start := time.Now()
	result, err := e.gateway.Charge(ctx, req)
	if err != nil {
		observability.RecordChargeDuration("failed", time.Since(start))
		return nil, err
	}
	observability.RecordChargeDuration("charged", time.Since(start))

	return result, nil
}
