package billing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/novalabs/billing-service/internal/adapters/ports"
	"github.com/novalabs/billing-service/internal/domain"
	domainports "github.com/novalabs/billing-service/internal/domain/ports"
	pkgerrors "github.com/novalabs/billing-service/pkg/errors"
	"github.com/novalabs/billing-service/pkg/observability"
	"github.com/novalabs/billing-service/pkg/timeutil"
)

// Outcome classifies the result of sweeping one subscription.
type Outcome string

const (
	OutcomeCharged   Outcome = "charged"
	OutcomeFailed    Outcome = "failed"
	OutcomeSuspended Outcome = "suspended"
	OutcomeSkipped   Outcome = "skipped"
)

// SweepDetail is the per-subscription entry of a sweep report.
type SweepDetail struct {
	AccountID string  `json:"account_id"`
	Outcome   Outcome `json:"outcome"`
	OrderID   string  `json:"order_id,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// SweepResult aggregates one sweep for the cron response and the logs.
type SweepResult struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Suspended int           `json:"suspended"`
	Skipped   int           `json:"skipped"`
	Details   []SweepDetail `json:"details"`
}

// SchedulerConfig tunes the sweep loop.
type SchedulerConfig struct {
	// BatchSize caps how many due subscriptions one sweep processes.
	BatchSize int32

	// ChargesPerSecond paces outbound gateway calls. Zero disables pacing.
	ChargesPerSecond float64
}

// DefaultSchedulerConfig returns default sweep tuning
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BatchSize:        500,
		ChargesPerSecond: 5,
	}
}

// Scheduler runs the periodic billing sweep: list due subscriptions,
// charge each one, and apply the success or failure transition. It
// processes subscriptions sequentially so a single misbehaving account
// cannot amplify into concurrent duplicate charges.
type Scheduler struct {
	store    domainports.SubscriptionStore
	executor *ChargeExecutor
	ledger   domainports.PaymentLedger
	notifier domainports.Notifier
	policy   RetryPolicy
	limiter  *rate.Limiter
	logger   ports.Logger
}

// NewScheduler creates a new billing scheduler
func NewScheduler(
	store domainports.SubscriptionStore,
	executor *ChargeExecutor,
	ledger domainports.PaymentLedger,
	notifier domainports.Notifier,
	cfg SchedulerConfig,
	logger ports.Logger,
) *Scheduler {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.ChargesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ChargesPerSecond), 1)
	}
	return &Scheduler{
		store:    store,
		executor: executor,
		ledger:   ledger,
		notifier: notifier,
		limiter:  limiter,
		logger:   logger,
	}
}

// RunSweep processes every subscription due at or before asOf, up to the
// batch size. One subscription's failure never aborts the sweep: each is
// charged, transitioned, and counted independently.
func (s *Scheduler) RunSweep(ctx context.Context, asOf time.Time, batchSize int32) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{Details: make([]SweepDetail, 0)}

	subs, err := s.store.ListDue(ctx, asOf, batchSize)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}

	s.logger.Info("starting billing sweep",
		ports.String("as_of", asOf.Format(time.RFC3339)),
		ports.Int("due", len(subs)),
	)

	for _, sub := range subs {
		if err := s.limiter.Wait(ctx); err != nil {
			// Context cancelled mid-sweep; report what was processed.
			observability.RecordSweep(time.Since(start))
			return result, err
		}

		detail := s.processOne(ctx, sub, asOf)
		result.Processed++
		result.Details = append(result.Details, detail)

		switch detail.Outcome {
		case OutcomeCharged:
			result.Succeeded++
		case OutcomeSuspended:
			result.Suspended++
			result.Failed++
		case OutcomeFailed:
			result.Failed++
		case OutcomeSkipped:
			result.Skipped++
		}
		observability.RecordSubscriptionOutcome(string(detail.Outcome), string(sub.BillingCycle), sub.Amount)
	}

	observability.RecordSweep(time.Since(start))

	s.logger.Info("billing sweep completed",
		ports.Int("processed", result.Processed),
		ports.Int("succeeded", result.Succeeded),
		ports.Int("failed", result.Failed),
		ports.Int("skipped", result.Skipped),
		ports.String("elapsed", time.Since(start).String()),
	)

	return result, nil
}

// processOne charges a single subscription and applies the resulting
// state transition. Panics are contained here so one poisoned account
// record cannot take down the whole sweep.
func (s *Scheduler) processOne(ctx context.Context, sub *domain.Subscription, asOf time.Time) (detail SweepDetail) {
	detail = SweepDetail{AccountID: sub.AccountID}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing subscription",
				ports.String("account_id", sub.AccountID),
				ports.String("panic", fmt.Sprint(r)),
			)
			detail.Outcome = OutcomeSkipped
			detail.Reason = "internal error"
		}
	}()

	// Re-check eligibility against the listing criteria. The store query
	// already filters, but a record mutated between listing and processing
	// must not be charged on stale state.
	if !sub.IsEligible(asOf) {
		detail.Outcome = OutcomeSkipped
		detail.Reason = "no longer eligible"
		return detail
	}

	// A due subscription without billing credentials is a data problem,
	// not a payment failure: skip it without touching the failure count so
	// it cannot drift into suspension.
	if !sub.HasBillingCredentials() {
		s.logger.Error("due subscription missing billing credentials",
			ports.String("account_id", sub.AccountID),
			ports.String("plan", string(sub.Plan)),
		)
		detail.Outcome = OutcomeSkipped
		detail.Reason = "missing billing credentials"
		return detail
	}

	chargeResult, err := s.executor.Execute(ctx, sub)
	if err != nil {
		return s.handleFailure(ctx, sub, err, detail)
	}
	return s.handleSuccess(ctx, sub, chargeResult, detail)
}

func (s *Scheduler) handleSuccess(ctx context.Context, sub *domain.Subscription, chargeResult *domainports.ChargeResult, detail SweepDetail) SweepDetail {
	now := timeutil.Now()

	record := &domain.PaymentRecord{
		PaymentKey: chargeResult.PaymentKey,
		AccountID:  sub.AccountID,
		OrderID:    chargeResult.OrderID,
		Amount:     chargeResult.Amount,
		OrderName:  OrderName(sub.Plan, sub.BillingCycle),
		Method:     chargeResult.Method,
		Status:     domain.PaymentStatusDone,
		ApprovedAt: chargeResult.ApprovedAt,
		CardNumber: chargeResult.CardNumber,
	}
	if err := s.ledger.Append(ctx, record); err != nil {
		// The charge landed; losing the ledger write must not trigger a
		// second charge. Log loudly and continue with the state advance.
		s.logger.Error("failed to append payment record after successful charge",
			ports.String("account_id", sub.AccountID),
			ports.String("payment_key", chargeResult.PaymentKey),
			ports.Err(err),
		)
	}

	// The next cycle runs from the charge time, not the scheduled due
	// date, so a subscription swept late is not charged again early.
	update := domainports.SuccessUpdate{
		NextBillingDate: sub.NextCycleDate(now),
		PaidAt:          chargeResult.ApprovedAt,
		OrderID:         chargeResult.OrderID,
	}
	if err := s.store.ApplySuccess(ctx, sub.AccountID, update); err != nil {
		s.logger.Error("failed to apply charge success",
			ports.String("account_id", sub.AccountID),
			ports.Err(err),
		)
		detail.Outcome = OutcomeFailed
		detail.Reason = "charge succeeded but state update failed"
		detail.OrderID = chargeResult.OrderID
		return detail
	}

	s.notifyReceipt(ctx, sub, chargeResult)

	s.logger.Info("subscription charged",
		ports.String("account_id", sub.AccountID),
		ports.String("order_id", chargeResult.OrderID),
		ports.Int64("amount", chargeResult.Amount),
	)

	detail.Outcome = OutcomeCharged
	detail.OrderID = chargeResult.OrderID
	return detail
}

func (s *Scheduler) handleFailure(ctx context.Context, sub *domain.Subscription, chargeErr error, detail SweepDetail) SweepDetail {
	reason := failureReason(chargeErr)
	update := s.policy.Decide(sub, reason, timeutil.Now())

	if err := s.store.ApplyFailure(ctx, sub.AccountID, update); err != nil {
		s.logger.Error("failed to apply charge failure",
			ports.String("account_id", sub.AccountID),
			ports.Err(err),
		)
		detail.Outcome = OutcomeFailed
		detail.Reason = reason
		return detail
	}

	suspended := update.Status == domain.SubscriptionStatusSuspended
	s.notifyFailure(ctx, sub, update, suspended)

	s.logger.Error("subscription charge failed",
		ports.String("account_id", sub.AccountID),
		ports.String("reason", reason),
		ports.Int("failure_count", update.FailureCount),
		ports.Int("suspended", boolToInt(suspended)),
	)

	if suspended {
		detail.Outcome = OutcomeSuspended
	} else {
		detail.Outcome = OutcomeFailed
	}
	detail.Reason = reason
	return detail
}

func (s *Scheduler) notifyReceipt(ctx context.Context, sub *domain.Subscription, chargeResult *domainports.ChargeResult) {
	receipt := domainports.Receipt{
		OrderID:    chargeResult.OrderID,
		Amount:     chargeResult.Amount,
		Method:     chargeResult.Method,
		ApprovedAt: chargeResult.ApprovedAt,
		Plan:       sub.Plan,
	}
	if err := s.notifier.SendReceipt(ctx, sub.AccountID, receipt); err != nil {
		s.logger.Error("failed to send receipt notification",
			ports.String("account_id", sub.AccountID),
			ports.Err(err),
		)
	}
}

func (s *Scheduler) notifyFailure(ctx context.Context, sub *domain.Subscription, update domainports.FailureUpdate, suspended bool) {
	notice := domainports.FailureNotice{
		Reason:        update.Reason,
		FailureCount:  update.FailureCount,
		NextRetryDate: update.NextRetryDate,
		Suspended:     suspended,
	}
	if err := s.notifier.SendFailureNotice(ctx, sub.AccountID, notice); err != nil {
		s.logger.Error("failed to send failure notification",
			ports.String("account_id", sub.AccountID),
			ports.Err(err),
		)
	}
}

// failureReason extracts a compact diagnostic string for the failure
// fields and the failure notice.
func failureReason(err error) string {
	if paymentErr, ok := pkgerrors.AsPaymentError(err); ok {
		if paymentErr.GatewayMessage != "" {
			return fmt.Sprintf("%s: %s", paymentErr.Code, paymentErr.GatewayMessage)
		}
		return paymentErr.Code
	}
	return err.Error()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
