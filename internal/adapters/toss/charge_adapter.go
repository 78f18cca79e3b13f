package toss

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/novalabs/billing-service/internal/adapters/ports"
	domainports "github.com/novalabs/billing-service/internal/domain/ports"
	pkgerrors "github.com/novalabs/billing-service/pkg/errors"
	"github.com/novalabs/billing-service/pkg/timeutil"
)

// Config holds connection settings for the billing-key payment gateway.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// ChargeAdapter implements ports.ChargeGateway against the gateway's
// billing-key HTTP API. It never retries: a timed-out or rejected charge
// is normalized into a PaymentError and retry timing is left to the
// billing policy at the next sweep.
type ChargeAdapter struct {
	config     Config
	httpClient ports.HTTPClient
	logger     ports.Logger
}

// NewChargeAdapter creates a new gateway adapter with dependency injection
func NewChargeAdapter(config Config, httpClient ports.HTTPClient, logger ports.Logger) *ChargeAdapter {
	return &ChargeAdapter{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

type chargeRequest struct {
	CustomerKey string `json:"customerKey"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderName   string `json:"orderName"`
}

type confirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

type cancelRequest struct {
	CancelReason string `json:"cancelReason"`
}

type paymentResponse struct {
	Status      string `json:"status"`
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	TotalAmount int64  `json:"totalAmount"`
	ApprovedAt  string `json:"approvedAt"`
	Method      string `json:"method"`
	Card        *struct {
		Number  string `json:"number"`
		Company string `json:"company"`
	} `json:"card"`
	CancelledAt string `json:"canceledAt"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusDone is the gateway's single terminal success state. Anything
// else on a 2xx response still counts as a failed charge.
const statusDone = "DONE"

// Charge executes a single charge against a stored billing key.
func (a *ChargeAdapter) Charge(ctx context.Context, req domainports.ChargeRequest) (*domainports.ChargeResult, error) {
	if req.BillingKey == "" {
		return nil, pkgerrors.NewValidationError("billing_key", "billing key is required")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.NewValidationError("amount", "amount must be positive")
	}

	endpoint := fmt.Sprintf("/charge/%s", req.BillingKey)
	apiReq := chargeRequest{
		CustomerKey: req.CustomerKey,
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		OrderName:   req.OrderName,
	}

	var resp paymentResponse
	if err := a.makeRequest(ctx, http.MethodPost, endpoint, apiReq, &resp); err != nil {
		return nil, err
	}

	if resp.Status != statusDone {
		return nil, pkgerrors.NewPaymentError("PAYMENT_NOT_DONE",
			"Payment did not reach a terminal success state",
			pkgerrors.CategoryDeclined, true)
	}

	return a.toResult(&resp), nil
}

// Confirm finalizes a client-initiated checkout. A duplicate confirmation
// surfaces as a PaymentError with CategoryDuplicate; callers decide how
// to absorb it.
func (a *ChargeAdapter) Confirm(ctx context.Context, req domainports.ConfirmRequest) (*domainports.ChargeResult, error) {
	if req.PaymentKey == "" {
		return nil, pkgerrors.NewValidationError("payment_key", "payment key is required")
	}
	if req.OrderID == "" {
		return nil, pkgerrors.NewValidationError("order_id", "order id is required")
	}

	apiReq := confirmRequest{
		PaymentKey: req.PaymentKey,
		OrderID:    req.OrderID,
		Amount:     req.Amount,
	}

	var resp paymentResponse
	if err := a.makeRequest(ctx, http.MethodPost, "/confirm", apiReq, &resp); err != nil {
		return nil, err
	}

	if resp.Status != statusDone {
		return nil, pkgerrors.NewPaymentError("PAYMENT_NOT_DONE",
			"Payment did not reach a terminal success state",
			pkgerrors.CategoryDeclined, true)
	}

	return a.toResult(&resp), nil
}

// Cancel refunds a captured payment by its payment key.
func (a *ChargeAdapter) Cancel(ctx context.Context, paymentKey, reason string) (*domainports.ChargeResult, error) {
	if paymentKey == "" {
		return nil, pkgerrors.NewValidationError("payment_key", "payment key is required")
	}

	endpoint := fmt.Sprintf("/cancel/%s", paymentKey)
	apiReq := cancelRequest{CancelReason: reason}

	var resp paymentResponse
	if err := a.makeRequest(ctx, http.MethodPost, endpoint, apiReq, &resp); err != nil {
		return nil, err
	}

	result := a.toResult(&resp)
	if cancelledAt, err := timeutil.ParseDate(time.RFC3339, resp.CancelledAt); err == nil && !cancelledAt.IsZero() {
		result.CancelledAt = &cancelledAt
	}
	return result, nil
}

func (a *ChargeAdapter) toResult(resp *paymentResponse) *domainports.ChargeResult {
	approvedAt, err := timeutil.ParseDate(time.RFC3339, resp.ApprovedAt)
	if err != nil || approvedAt.IsZero() {
		approvedAt = timeutil.Now()
	}

	result := &domainports.ChargeResult{
		PaymentKey: resp.PaymentKey,
		OrderID:    resp.OrderID,
		Amount:     resp.TotalAmount,
		ApprovedAt: approvedAt,
		Method:     resp.Method,
	}
	if resp.Card != nil {
		result.CardNumber = resp.Card.Number
	}
	return result
}

// makeRequest makes an HTTP request to the gateway with basic auth and
// normalizes every failure into a PaymentError.
func (a *ChargeAdapter) makeRequest(ctx context.Context, method, endpoint string, request interface{}, response interface{}) error {
	payloadBytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := a.config.BaseURL + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", basicAuth(a.config.SecretKey))

	if a.logger != nil {
		a.logger.Info("making request to payment gateway",
			ports.String("method", method),
			ports.String("endpoint", endpoint),
		)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		// Includes client-side timeouts. Conservative: assume the charge
		// did not land; the next sweep retries per the policy schedule.
		return pkgerrors.NewPaymentError("NETWORK_ERROR", "Failed to connect to payment gateway", pkgerrors.CategoryNetworkError, true)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return a.normalizeError(httpResp.StatusCode, body)
	}

	if err := json.Unmarshal(body, response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// normalizeError maps a gateway error envelope to a PaymentError.
func (a *ChargeAdapter) normalizeError(statusCode int, body []byte) error {
	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Code == "" {
		if statusCode >= 500 {
			return pkgerrors.NewPaymentError("GATEWAY_ERROR", "Payment gateway error", pkgerrors.CategorySystemError, true)
		}
		return pkgerrors.NewPaymentError("REQUEST_ERROR", "Invalid request to payment gateway", pkgerrors.CategoryInvalidRequest, false)
	}

	if IsAlreadyProcessed(envelope.Code, envelope.Message) {
		err := pkgerrors.NewPaymentError(envelope.Code, "Payment already completed", pkgerrors.CategoryDuplicate, false)
		err.GatewayMessage = envelope.Message
		return err
	}

	return GetResponseCode(envelope.Code).ToPaymentError(envelope.Message)
}

func basicAuth(secretKey string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(secretKey+":"))
}
