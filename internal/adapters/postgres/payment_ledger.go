package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/novalabs/billing-service/internal/domain"
)

// PaymentLedger implements ports.PaymentLedger over the payments table.
// The gateway payment key is the primary key, which makes Append a
// natural upsert: replaying the same confirmation can never double-book
// a charge.
type PaymentLedger struct {
	db *DB
}

// NewPaymentLedger creates a new payment ledger
func NewPaymentLedger(db *DB) *PaymentLedger {
	return &PaymentLedger{db: db}
}

const paymentColumns = `
	payment_key, account_id, order_id, amount, order_name, method, status,
	approved_at, card_number, cancelled_at, cancel_amount, cancel_reason,
	created_at`

// Append upserts a record by payment key. On conflict the charge fields
// are refreshed but status and refund metadata are left alone, so a
// replayed confirmation cannot resurrect a refunded payment.
func (l *PaymentLedger) Append(ctx context.Context, record *domain.PaymentRecord) error {
	query := `INSERT INTO payments (
			payment_key, account_id, order_id, amount, order_name, method,
			status, approved_at, card_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (payment_key) DO UPDATE SET
			order_id    = EXCLUDED.order_id,
			amount      = EXCLUDED.amount,
			order_name  = EXCLUDED.order_name,
			method      = EXCLUDED.method,
			approved_at = EXCLUDED.approved_at,
			card_number = EXCLUDED.card_number`

	_, err := l.db.Pool().Exec(ctx, query,
		record.PaymentKey,
		record.AccountID,
		record.OrderID,
		record.Amount,
		nullText(record.OrderName),
		nullText(record.Method),
		string(record.Status),
		timestamptz(record.ApprovedAt),
		nullText(record.CardNumber),
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "append payment record", err)
	}
	return nil
}

// Get performs a point lookup by account and payment key.
func (l *PaymentLedger) Get(ctx context.Context, accountID, paymentKey string) (*domain.PaymentRecord, error) {
	query := `SELECT` + paymentColumns + `
		FROM payments
		WHERE account_id = $1 AND payment_key = $2`

	row := l.db.Pool().QueryRow(ctx, query, accountID, paymentKey)
	record, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "get payment record", err)
	}
	return record, nil
}

// ListRecent returns up to limit records, newest approval first. If the
// ordered query fails, for example against a legacy table missing the
// approved_at index, it falls back to an unordered scan rather than
// returning nothing.
func (l *PaymentLedger) ListRecent(ctx context.Context, accountID string, limit int32) ([]*domain.PaymentRecord, error) {
	ordered := `SELECT` + paymentColumns + `
		FROM payments
		WHERE account_id = $1
		ORDER BY approved_at DESC NULLS LAST
		LIMIT $2`

	records, err := l.queryPayments(ctx, ordered, accountID, limit)
	if err == nil {
		return records, nil
	}

	l.db.logger.Warn("ordered payment scan failed, falling back to unordered",
		zap.String("account_id", accountID),
		zap.Error(err),
	)

	unordered := `SELECT` + paymentColumns + `
		FROM payments
		WHERE account_id = $1
		LIMIT $2`

	records, err = l.queryPayments(ctx, unordered, accountID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list payment records", err)
	}
	return records, nil
}

// MarkRefunded flips a record to a refunded status and attaches the
// refund metadata.
func (l *PaymentLedger) MarkRefunded(ctx context.Context, accountID, paymentKey string, meta domain.RefundMeta) error {
	status := domain.PaymentStatusRefunded
	if meta.Partial {
		status = domain.PaymentStatusPartialRefunded
	}

	query := `UPDATE payments SET
			status        = $3,
			cancelled_at  = $4,
			cancel_amount = $5,
			cancel_reason = $6
		WHERE account_id = $1 AND payment_key = $2`

	tag, err := l.db.Pool().Exec(ctx, query, accountID, paymentKey,
		string(status),
		timestamptz(meta.CancelledAt),
		meta.CancelAmount,
		nullText(meta.CancelReason),
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "mark payment refunded", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (l *PaymentLedger) queryPayments(ctx context.Context, query, accountID string, limit int32) ([]*domain.PaymentRecord, error) {
	rows, err := l.db.Pool().Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.PaymentRecord
	for rows.Next() {
		record, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.PaymentRecord, error) {
	var (
		record       domain.PaymentRecord
		orderName    pgtype.Text
		method       pgtype.Text
		status       string
		approvedAt   pgtype.Timestamptz
		cardNumber   pgtype.Text
		cancelledAt  pgtype.Timestamptz
		cancelAmount pgtype.Int8
		cancelReason pgtype.Text
	)

	err := row.Scan(
		&record.PaymentKey,
		&record.AccountID,
		&record.OrderID,
		&record.Amount,
		&orderName,
		&method,
		&status,
		&approvedAt,
		&cardNumber,
		&cancelledAt,
		&cancelAmount,
		&cancelReason,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.OrderName = textValue(orderName)
	record.Method = textValue(method)
	record.Status = domain.PaymentStatus(status)
	if approvedAt.Valid {
		record.ApprovedAt = approvedAt.Time.UTC()
	}
	record.CardNumber = textValue(cardNumber)
	record.CancelledAt = timePtr(cancelledAt)
	if cancelAmount.Valid {
		record.CancelAmount = cancelAmount.Int64
	}
	record.CancelReason = textValue(cancelReason)
	return &record, nil
}
