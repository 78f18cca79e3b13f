package billing

import (
	"time"

	"github.com/novalabs/billing-service/internal/domain"
	"github.com/novalabs/billing-service/internal/domain/ports"
)

// MaxFailures is the number of consecutive failed charges after which a
// subscription is suspended instead of rescheduled.
const MaxFailures = 3

// RetryPolicy decides what happens to a subscription after a failed
// charge. The schedule stretches between attempts: two days after the
// first failure, three more days after the second, suspension on the
// third. Subscriptions on the test cycle retry after one minute so the
// whole failure path can be walked in minutes.
type RetryPolicy struct{}

// Decide returns the failure update for one more failed attempt. The
// returned update carries the incremented failure count; callers hand it
// to the store unchanged.
func (RetryPolicy) Decide(sub *domain.Subscription, reason string, failedAt time.Time) ports.FailureUpdate {
	count := sub.FailureCount + 1

	update := ports.FailureUpdate{
		FailureCount: count,
		Reason:       reason,
		FailedAt:     failedAt,
	}

	if count >= MaxFailures {
		// Suspended subscriptions keep their failure history but drop out
		// of every future sweep until the customer reactivates.
		update.Status = domain.SubscriptionStatusSuspended
		update.NextRetryDate = nil
		return update
	}

	update.Status = domain.SubscriptionStatusActive
	retry := failedAt.Add(retryDelay(sub.BillingCycle, count))
	update.NextRetryDate = &retry
	return update
}

func retryDelay(cycle domain.BillingCycle, failureCount int) time.Duration {
	if cycle == domain.CycleTest {
		return time.Minute
	}
	if failureCount == 1 {
		return 2 * 24 * time.Hour
	}
	return 3 * 24 * time.Hour
}
