package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func activeSubscription(next time.Time) *Subscription {
	return &Subscription{
		AccountID:       "acc_1",
		Plan:            PlanPlus,
		BillingKey:      "bk_1",
		CustomerKey:     "ck_1",
		IsRecurring:     true,
		BillingCycle:    CycleMonthly,
		Amount:          19_900,
		Status:          SubscriptionStatusActive,
		NextBillingDate: &next,
	}
}

func TestSubscription_IsEligible(t *testing.T) {
	asOf := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)

	// Due exactly at the sweep time counts as due.
	assert.True(t, activeSubscription(asOf).IsEligible(asOf))
	assert.True(t, activeSubscription(asOf.Add(-time.Hour)).IsEligible(asOf))
	assert.False(t, activeSubscription(asOf.Add(time.Second)).IsEligible(asOf))

	sub := activeSubscription(asOf)
	sub.Status = SubscriptionStatusSuspended
	assert.False(t, sub.IsEligible(asOf))

	sub = activeSubscription(asOf)
	sub.IsRecurring = false
	assert.False(t, sub.IsEligible(asOf))

	sub = activeSubscription(asOf)
	sub.NextBillingDate = nil
	assert.False(t, sub.IsEligible(asOf))
}

func TestSubscription_HasBillingCredentials(t *testing.T) {
	sub := activeSubscription(time.Now())
	assert.True(t, sub.HasBillingCredentials())

	sub.BillingKey = ""
	assert.False(t, sub.HasBillingCredentials())

	sub = activeSubscription(time.Now())
	sub.CustomerKey = ""
	assert.False(t, sub.HasBillingCredentials())

	sub = activeSubscription(time.Now())
	sub.Amount = 0
	assert.False(t, sub.HasBillingCredentials())
}

func TestSubscription_NextCycleDate(t *testing.T) {
	from := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)

	sub := activeSubscription(from)
	assert.Equal(t, from.Add(30*24*time.Hour), sub.NextCycleDate(from))

	sub.BillingCycle = CycleYearly
	assert.Equal(t, from.Add(365*24*time.Hour), sub.NextCycleDate(from))

	sub.BillingCycle = CycleTest
	assert.Equal(t, from.Add(60*time.Second), sub.NextCycleDate(from))

	// Unknown cycles bill monthly.
	sub.BillingCycle = BillingCycle("weekly")
	assert.Equal(t, from.Add(30*24*time.Hour), sub.NextCycleDate(from))
}

func TestBillingCycleInterval(t *testing.T) {
	assert.Equal(t, 30*24*time.Hour, CycleMonthly.Interval())
	assert.Equal(t, 365*24*time.Hour, CycleYearly.Interval())
	assert.Equal(t, 60*time.Second, CycleTest.Interval())
}
