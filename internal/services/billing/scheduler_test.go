package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	adapterports "github.com/novalabs/billing-service/internal/adapters/ports"
	"github.com/novalabs/billing-service/internal/domain"
	"github.com/novalabs/billing-service/internal/domain/ports"
	pkgerrors "github.com/novalabs/billing-service/pkg/errors"
)

// MockSubscriptionStore mocks the subscription store
type MockSubscriptionStore struct {
	mock.Mock
}

func (m *MockSubscriptionStore) Load(ctx context.Context, accountID string) (*domain.Subscription, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *MockSubscriptionStore) ListDue(ctx context.Context, asOf time.Time, limit int32) ([]*domain.Subscription, error) {
	args := m.Called(ctx, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Subscription), args.Error(1)
}

func (m *MockSubscriptionStore) ApplySuccess(ctx context.Context, accountID string, update ports.SuccessUpdate) error {
	args := m.Called(ctx, accountID, update)
	return args.Error(0)
}

func (m *MockSubscriptionStore) ApplyFailure(ctx context.Context, accountID string, update ports.FailureUpdate) error {
	args := m.Called(ctx, accountID, update)
	return args.Error(0)
}

func (m *MockSubscriptionStore) ActivateFromCheckout(ctx context.Context, accountID string, activation ports.CheckoutActivation) error {
	args := m.Called(ctx, accountID, activation)
	return args.Error(0)
}

func (m *MockSubscriptionStore) ApplyRefund(ctx context.Context, accountID string, at time.Time) error {
	args := m.Called(ctx, accountID, at)
	return args.Error(0)
}

func (m *MockSubscriptionStore) Cancel(ctx context.Context, accountID string, at time.Time) error {
	args := m.Called(ctx, accountID, at)
	return args.Error(0)
}

func (m *MockSubscriptionStore) Reactivate(ctx context.Context, accountID, billingKey, customerKey string, at time.Time) error {
	args := m.Called(ctx, accountID, billingKey, customerKey, at)
	return args.Error(0)
}

// MockPaymentLedger mocks the payment ledger
type MockPaymentLedger struct {
	mock.Mock
}

func (m *MockPaymentLedger) Append(ctx context.Context, record *domain.PaymentRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockPaymentLedger) Get(ctx context.Context, accountID, paymentKey string) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, accountID, paymentKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentLedger) ListRecent(ctx context.Context, accountID string, limit int32) ([]*domain.PaymentRecord, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentLedger) MarkRefunded(ctx context.Context, accountID, paymentKey string, meta domain.RefundMeta) error {
	args := m.Called(ctx, accountID, paymentKey, meta)
	return args.Error(0)
}

// MockChargeGateway mocks the payment gateway
type MockChargeGateway struct {
	mock.Mock
}

func (m *MockChargeGateway) Charge(ctx context.Context, req ports.ChargeRequest) (*ports.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ChargeResult), args.Error(1)
}

func (m *MockChargeGateway) Confirm(ctx context.Context, req ports.ConfirmRequest) (*ports.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ChargeResult), args.Error(1)
}

func (m *MockChargeGateway) Cancel(ctx context.Context, paymentKey, reason string) (*ports.ChargeResult, error) {
	args := m.Called(ctx, paymentKey, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ChargeResult), args.Error(1)
}

// MockNotifier mocks the notification dispatcher
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendReceipt(ctx context.Context, accountID string, receipt ports.Receipt) error {
	args := m.Called(ctx, accountID, receipt)
	return args.Error(0)
}

func (m *MockNotifier) SendFailureNotice(ctx context.Context, accountID string, notice ports.FailureNotice) error {
	args := m.Called(ctx, accountID, notice)
	return args.Error(0)
}

// nopLogger satisfies the logger port without recording anything
type nopLogger struct{}

func (nopLogger) Info(string, ...adapterports.Field)  {}
func (nopLogger) Error(string, ...adapterports.Field) {}
func (nopLogger) Warn(string, ...adapterports.Field)  {}
func (nopLogger) Debug(string, ...adapterports.Field) {}

func testScheduler(store *MockSubscriptionStore, gateway *MockChargeGateway, ledger *MockPaymentLedger, notifier *MockNotifier) *Scheduler {
	executor := NewChargeExecutor(gateway, nopLogger{})
	cfg := SchedulerConfig{BatchSize: 100, ChargesPerSecond: 0}
	return NewScheduler(store, executor, ledger, notifier, cfg, nopLogger{})
}

func dueSubscription(accountID string) *domain.Subscription {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Subscription{
		AccountID:       accountID,
		Plan:            domain.PlanPlus,
		BillingKey:      "bk_" + accountID,
		CustomerKey:     "ck_" + accountID,
		IsRecurring:     true,
		BillingCycle:    domain.CycleMonthly,
		Amount:          19_900,
		Status:          domain.SubscriptionStatusActive,
		NextBillingDate: &due,
	}
}

func TestScheduler_RunSweep_ChargesDueSubscription(t *testing.T) {
	store := new(MockSubscriptionStore)
	gateway := new(MockChargeGateway)
	ledger := new(MockPaymentLedger)
	notifier := new(MockNotifier)
	scheduler := testScheduler(store, gateway, ledger, notifier)

	ctx := context.Background()
	asOf := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	sub := dueSubscription("acc_1")
	approvedAt := time.Now().UTC()

	store.On("ListDue", ctx, asOf, int32(100)).Return([]*domain.Subscription{sub}, nil)
	gateway.On("Charge", ctx, mock.MatchedBy(func(req ports.ChargeRequest) bool {
		return req.BillingKey == "bk_acc_1" && req.Amount == 19_900 && req.OrderID != ""
	})).Return(&ports.ChargeResult{
		PaymentKey: "pk_1",
		OrderID:    "sub_20260302T030000_abc",
		Amount:     19_900,
		ApprovedAt: approvedAt,
		Method:     "card",
		CardNumber: "4330**1234",
	}, nil)
	ledger.On("Append", ctx, mock.MatchedBy(func(r *domain.PaymentRecord) bool {
		return r.PaymentKey == "pk_1" && r.AccountID == "acc_1" && r.Status == domain.PaymentStatusDone
	})).Return(nil)
	store.On("ApplySuccess", ctx, "acc_1", mock.MatchedBy(func(u ports.SuccessUpdate) bool {
		// The next cycle runs from the charge time, roughly thirty days out.
		delta := time.Until(u.NextBillingDate)
		return delta > 29*24*time.Hour && delta < 31*24*time.Hour && u.PaidAt.Equal(approvedAt)
	})).Return(nil)
	notifier.On("SendReceipt", ctx, "acc_1", mock.AnythingOfType("ports.Receipt")).Return(nil)

	result, err := scheduler.RunSweep(ctx, asOf, 100)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Details, 1)
	assert.Equal(t, OutcomeCharged, result.Details[0].Outcome)
	store.AssertExpectations(t)
	gateway.AssertExpectations(t)
	ledger.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestScheduler_RunSweep_FirstFailureSchedulesRetry(t *testing.T) {
	store := new(MockSubscriptionStore)
	gateway := new(MockChargeGateway)
	ledger := new(MockPaymentLedger)
	notifier := new(MockNotifier)
	scheduler := testScheduler(store, gateway, ledger, notifier)

	ctx := context.Background()
	asOf := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	sub := dueSubscription("acc_1")

	store.On("ListDue", ctx, asOf, int32(100)).Return([]*domain.Subscription{sub}, nil)
	gateway.On("Charge", ctx, mock.Anything).Return(nil,
		pkgerrors.NewPaymentError("NOT_ENOUGH_BALANCE", "Insufficient funds", pkgerrors.CategoryInsufficientFunds, true))
	store.On("ApplyFailure", ctx, "acc_1", mock.MatchedBy(func(u ports.FailureUpdate) bool {
		if u.FailureCount != 1 || u.Status != domain.SubscriptionStatusActive || u.NextRetryDate == nil {
			return false
		}
		return u.NextRetryDate.Sub(u.FailedAt) == 2*24*time.Hour
	})).Return(nil)
	notifier.On("SendFailureNotice", ctx, "acc_1", mock.MatchedBy(func(n ports.FailureNotice) bool {
		return n.FailureCount == 1 && !n.Suspended && n.NextRetryDate != nil
	})).Return(nil)

	result, err := scheduler.RunSweep(ctx, asOf, 100)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, OutcomeFailed, result.Details[0].Outcome)
	ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestScheduler_RunSweep_ThirdFailureSuspends(t *testing.T) {
	store := new(MockSubscriptionStore)
	gateway := new(MockChargeGateway)
	ledger := new(MockPaymentLedger)
	notifier := new(MockNotifier)
	scheduler := testScheduler(store, gateway, ledger, notifier)

	ctx := context.Background()
	asOf := time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC)
	sub := dueSubscription("acc_1")
	sub.FailureCount = 2

	store.On("ListDue", ctx, asOf, int32(100)).Return([]*domain.Subscription{sub}, nil)
	gateway.On("Charge", ctx, mock.Anything).Return(nil,
		pkgerrors.NewPaymentError("EXPIRED_CARD", "Card expired", pkgerrors.CategoryExpiredCard, true))
	store.On("ApplyFailure", ctx, "acc_1", mock.MatchedBy(func(u ports.FailureUpdate) bool {
		return u.FailureCount == 3 &&
			u.Status == domain.SubscriptionStatusSuspended &&
			u.NextRetryDate == nil
	})).Return(nil)
	notifier.On("SendFailureNotice", ctx, "acc_1", mock.MatchedBy(func(n ports.FailureNotice) bool {
		return n.Suspended && n.NextRetryDate == nil
	})).Return(nil)

	result, err := scheduler.RunSweep(ctx, asOf, 100)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Suspended)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, OutcomeSuspended, result.Details[0].Outcome)
	store.AssertExpectations(t)
}

func TestScheduler_RunSweep_SkipsMissingCredentials(t *testing.T) {
	store := new(MockSubscriptionStore)
	gateway := new(MockChargeGateway)
	ledger := new(MockPaymentLedger)
	notifier := new(MockNotifier)
	scheduler := testScheduler(store, gateway, ledger, notifier)

	ctx := context.Background()
	asOf := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	sub := dueSubscription("acc_1")
	sub.BillingKey = ""

	store.On("ListDue", ctx, asOf, int32(100)).Return([]*domain.Subscription{sub}, nil)

	result, err := scheduler.RunSweep(ctx, asOf, 100)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, OutcomeSkipped, result.Details[0].Outcome)

	// The failure count must not move: this is a data problem, not a
	// payment failure.
	gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "ApplyFailure", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_RunSweep_SkipsIneligibleRecord(t *testing.T) {
	store := new(MockSubscriptionStore)
	gateway := new(MockChargeGateway)
	ledger := new(MockPaymentLedger)
	notifier := new(MockNotifier)
	scheduler := testScheduler(store, gateway, ledger, notifier)

	ctx := context.Background()
	asOf := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)

	// Listed by the query but mutated before processing: the billing date
	// now sits in the future.
	sub := dueSubscription("acc_1")
	future := asOf.Add(20 * 24 * time.Hour)
	sub.NextBillingDate = &future

	store.On("ListDue", ctx, asOf, int32(100)).Return([]*domain.Subscription{sub}, nil)

	result, err := scheduler.RunSweep(ctx, asOf, 100)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestScheduler_RunSweep_LedgerFailureDoesNotBlockStateAdvance(t *testing.T) {
	store := new(MockSubscriptionStore)
	gateway := new(MockChargeGateway)
	ledger := new(MockPaymentLedger)
	notifier := new(MockNotifier)
	scheduler := testScheduler(store, gateway, ledger, notifier)

	ctx := context.Background()
	asOf := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	sub := dueSubscription("acc_1")

	store.On("ListDue", ctx, asOf, int32(100)).Return([]*domain.Subscription{sub}, nil)
	gateway.On("Charge", ctx, mock.Anything).Return(&ports.ChargeResult{
		PaymentKey: "pk_1",
		OrderID:    "o_1",
		Amount:     19_900,
		ApprovedAt: time.Now().UTC(),
	}, nil)
	ledger.On("Append", ctx, mock.Anything).Return(domain.ErrDatabaseError)
	store.On("ApplySuccess", ctx, "acc_1", mock.Anything).Return(nil)
	notifier.On("SendReceipt", ctx, "acc_1", mock.Anything).Return(nil)

	result, err := scheduler.RunSweep(ctx, asOf, 100)

	// The charge landed; a lost ledger write must never trigger a second
	// charge, so the billing date still advances.
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	store.AssertExpectations(t)
}

func TestScheduler_RunSweep_PanicIsolatedPerSubscription(t *testing.T) {
	store := new(MockSubscriptionStore)
	gateway := new(MockChargeGateway)
	ledger := new(MockPaymentLedger)
	notifier := new(MockNotifier)
	scheduler := testScheduler(store, gateway, ledger, notifier)

	ctx := context.Background()
	asOf := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	poisoned := dueSubscription("acc_bad")
	healthy := dueSubscription("acc_good")

	store.On("ListDue", ctx, asOf, int32(100)).Return([]*domain.Subscription{poisoned, healthy}, nil)
	gateway.On("Charge", ctx, mock.MatchedBy(func(req ports.ChargeRequest) bool {
		return req.BillingKey == "bk_acc_bad"
	})).Run(func(mock.Arguments) {
		panic("corrupt record")
	}).Return(nil, nil)
	gateway.On("Charge", ctx, mock.MatchedBy(func(req ports.ChargeRequest) bool {
		return req.BillingKey == "bk_acc_good"
	})).Return(&ports.ChargeResult{
		PaymentKey: "pk_good",
		OrderID:    "o_good",
		Amount:     19_900,
		ApprovedAt: time.Now().UTC(),
	}, nil)
	ledger.On("Append", ctx, mock.Anything).Return(nil)
	store.On("ApplySuccess", ctx, "acc_good", mock.Anything).Return(nil)
	notifier.On("SendReceipt", ctx, "acc_good", mock.Anything).Return(nil)

	result, err := scheduler.RunSweep(ctx, asOf, 100)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
}

func TestScheduler_RunSweep_NotificationErrorsAreSwallowed(t *testing.T) {
	store := new(MockSubscriptionStore)
	gateway := new(MockChargeGateway)
	ledger := new(MockPaymentLedger)
	notifier := new(MockNotifier)
	scheduler := testScheduler(store, gateway, ledger, notifier)

	ctx := context.Background()
	asOf := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	sub := dueSubscription("acc_1")

	store.On("ListDue", ctx, asOf, int32(100)).Return([]*domain.Subscription{sub}, nil)
	gateway.On("Charge", ctx, mock.Anything).Return(&ports.ChargeResult{
		PaymentKey: "pk_1",
		OrderID:    "o_1",
		Amount:     19_900,
		ApprovedAt: time.Now().UTC(),
	}, nil)
	ledger.On("Append", ctx, mock.Anything).Return(nil)
	store.On("ApplySuccess", ctx, "acc_1", mock.Anything).Return(nil)
	notifier.On("SendReceipt", ctx, "acc_1", mock.Anything).Return(assert.AnError)

	result, err := scheduler.RunSweep(ctx, asOf, 100)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
}

func TestScheduler_RunSweep_EmptyBatch(t *testing.T) {
	store := new(MockSubscriptionStore)
	gateway := new(MockChargeGateway)
	ledger := new(MockPaymentLedger)
	notifier := new(MockNotifier)
	scheduler := testScheduler(store, gateway, ledger, notifier)

	ctx := context.Background()
	asOf := time.Now().UTC()

	store.On("ListDue", ctx, asOf, int32(100)).Return([]*domain.Subscription{}, nil)

	result, err := scheduler.RunSweep(ctx, asOf, 100)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, result.Details)
}
