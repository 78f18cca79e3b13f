package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novalabs/billing-service/internal/domain"
)

func TestRetryPolicy_FirstFailure(t *testing.T) {
	policy := RetryPolicy{}
	failedAt := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sub := &domain.Subscription{
		AccountID:    "acc_1",
		BillingCycle: domain.CycleMonthly,
		FailureCount: 0,
	}

	update := policy.Decide(sub, "NOT_ENOUGH_BALANCE", failedAt)

	assert.Equal(t, 1, update.FailureCount)
	assert.Equal(t, domain.SubscriptionStatusActive, update.Status)
	assert.Equal(t, "NOT_ENOUGH_BALANCE", update.Reason)
	assert.Equal(t, failedAt, update.FailedAt)
	require.NotNil(t, update.NextRetryDate)
	assert.Equal(t, failedAt.Add(2*24*time.Hour), *update.NextRetryDate)
}

func TestRetryPolicy_SecondFailure(t *testing.T) {
	policy := RetryPolicy{}
	failedAt := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	sub := &domain.Subscription{
		AccountID:    "acc_1",
		BillingCycle: domain.CycleMonthly,
		FailureCount: 1,
	}

	update := policy.Decide(sub, "REJECT_CARD_PAYMENT", failedAt)

	assert.Equal(t, 2, update.FailureCount)
	assert.Equal(t, domain.SubscriptionStatusActive, update.Status)
	require.NotNil(t, update.NextRetryDate)
	assert.Equal(t, failedAt.Add(3*24*time.Hour), *update.NextRetryDate)
}

func TestRetryPolicy_ThirdFailureSuspends(t *testing.T) {
	policy := RetryPolicy{}
	failedAt := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	sub := &domain.Subscription{
		AccountID:    "acc_1",
		BillingCycle: domain.CycleMonthly,
		FailureCount: 2,
	}

	update := policy.Decide(sub, "EXPIRED_CARD", failedAt)

	assert.Equal(t, 3, update.FailureCount)
	assert.Equal(t, domain.SubscriptionStatusSuspended, update.Status)
	assert.Nil(t, update.NextRetryDate)
	assert.Equal(t, "EXPIRED_CARD", update.Reason)
}

func TestRetryPolicy_TestCycleRetriesInOneMinute(t *testing.T) {
	policy := RetryPolicy{}
	failedAt := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sub := &domain.Subscription{
		AccountID:    "acc_test",
		BillingCycle: domain.CycleTest,
		FailureCount: 0,
	}

	update := policy.Decide(sub, "PROVIDER_ERROR", failedAt)

	require.NotNil(t, update.NextRetryDate)
	assert.Equal(t, failedAt.Add(time.Minute), *update.NextRetryDate)

	// The suspension threshold applies to the test cycle too.
	sub.FailureCount = 2
	update = policy.Decide(sub, "PROVIDER_ERROR", failedAt)
	assert.Equal(t, domain.SubscriptionStatusSuspended, update.Status)
	assert.Nil(t, update.NextRetryDate)
}

func TestRetryPolicy_FailureCountPastThreshold(t *testing.T) {
	// A record that somehow accumulated extra failures still suspends.
	policy := RetryPolicy{}
	sub := &domain.Subscription{
		AccountID:    "acc_1",
		BillingCycle: domain.CycleMonthly,
		FailureCount: 7,
	}

	update := policy.Decide(sub, "NOT_ENOUGH_BALANCE", time.Now().UTC())

	assert.Equal(t, 8, update.FailureCount)
	assert.Equal(t, domain.SubscriptionStatusSuspended, update.Status)
	assert.Nil(t, update.NextRetryDate)
}
