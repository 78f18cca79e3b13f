package billing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/novalabs/billing-service/internal/domain"
	"github.com/novalabs/billing-service/internal/domain/ports"
	pkgerrors "github.com/novalabs/billing-service/pkg/errors"
)

func TestNewOrderID(t *testing.T) {
	at := time.Date(2026, 3, 2, 3, 4, 5, 0, time.UTC)

	id := NewOrderID(at)

	assert.True(t, strings.HasPrefix(id, "sub_20260302T030405_"), id)

	// Two IDs generated at the same instant must still differ.
	assert.NotEqual(t, id, NewOrderID(at))
}

func TestOrderName(t *testing.T) {
	assert.Equal(t, "Nova Plus (monthly)", OrderName(domain.PlanPlus, domain.CycleMonthly))
	assert.Equal(t, "Nova Pro (yearly)", OrderName(domain.PlanPro, domain.CycleYearly))
}

func TestChargeExecutor_Execute(t *testing.T) {
	gateway := new(MockChargeGateway)
	executor := NewChargeExecutor(gateway, nopLogger{})

	ctx := context.Background()
	sub := dueSubscription("acc_1")
	approvedAt := time.Now().UTC()

	var captured ports.ChargeRequest
	gateway.On("Charge", ctx, mock.MatchedBy(func(req ports.ChargeRequest) bool {
		captured = req
		return true
	})).Return(&ports.ChargeResult{
		PaymentKey: "pk_1",
		OrderID:    "o_1",
		Amount:     19_900,
		ApprovedAt: approvedAt,
	}, nil)

	result, err := executor.Execute(ctx, sub)

	require.NoError(t, err)
	assert.Equal(t, "pk_1", result.PaymentKey)
	assert.Equal(t, "bk_acc_1", captured.BillingKey)
	assert.Equal(t, "ck_acc_1", captured.CustomerKey)
	assert.Equal(t, int64(19_900), captured.Amount)
	assert.Equal(t, "Nova Plus (monthly)", captured.OrderName)
	assert.True(t, strings.HasPrefix(captured.OrderID, "sub_"))
}

func TestChargeExecutor_Execute_FreshOrderIDPerAttempt(t *testing.T) {
	gateway := new(MockChargeGateway)
	executor := NewChargeExecutor(gateway, nopLogger{})

	ctx := context.Background()
	sub := dueSubscription("acc_1")

	var orderIDs []string
	gateway.On("Charge", ctx, mock.MatchedBy(func(req ports.ChargeRequest) bool {
		orderIDs = append(orderIDs, req.OrderID)
		return true
	})).Return(nil, pkgerrors.NewPaymentError("PROVIDER_ERROR", "try again", pkgerrors.CategorySystemError, true))

	_, err1 := executor.Execute(ctx, sub)
	_, err2 := executor.Execute(ctx, sub)

	require.Error(t, err1)
	require.Error(t, err2)
	require.Len(t, orderIDs, 2)
	// Each attempt is a genuinely new charge toward the gateway.
	assert.NotEqual(t, orderIDs[0], orderIDs[1])
}
