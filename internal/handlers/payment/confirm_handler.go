package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/novalabs/billing-service/internal/domain"
	"github.com/novalabs/billing-service/internal/services/checkout"
	pkgerrors "github.com/novalabs/billing-service/pkg/errors"
)

// ConfirmHandler exposes the checkout flows over HTTP: confirmation,
// refunds, payment history, and the customer subscription actions.
type ConfirmHandler struct {
	service *checkout.Service
	logger  *zap.Logger
}

// NewConfirmHandler creates a new payment handler
func NewConfirmHandler(service *checkout.Service, logger *zap.Logger) *ConfirmHandler {
	return &ConfirmHandler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the payment routes on the given mux.
func (h *ConfirmHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments/confirm", h.Confirm)
	mux.HandleFunc("POST /payments/refund", h.Refund)
	mux.HandleFunc("GET /payments", h.ListPayments)
	mux.HandleFunc("POST /subscription/cancel", h.CancelSubscription)
	mux.HandleFunc("POST /subscription/reactivate", h.ReactivateSubscription)
}

// ConfirmRequest is the body of POST /payments/confirm, sent by the
// client after the gateway redirects back from checkout.
type ConfirmRequest struct {
	PaymentKey string `json:"payment_key"`
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"`
	AccountID  string `json:"account_id,omitempty"`
}

// Confirm handles POST /payments/confirm. Replays of the same
// confirmation return success with already_processed set.
func (h *ConfirmHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Confirm(r.Context(), req.PaymentKey, req.OrderID, req.Amount, req.AccountID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

// RefundRequest is the body of POST /payments/refund.
type RefundRequest struct {
	AccountID  string `json:"account_id"`
	PaymentKey string `json:"payment_key"`
	Reason     string `json:"reason,omitempty"`
}

// Refund handles POST /payments/refund
func (h *ConfirmHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Refund(r.Context(), req.AccountID, req.PaymentKey, req.Reason)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

// ListPayments handles GET /payments?account_id=...&limit=...
func (h *ConfirmHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")

	var limit int32 = 20
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.ParseInt(limitParam, 10, 32); err == nil {
			limit = int32(parsed)
		}
	}

	records, err := h.service.ListPayments(r.Context(), accountID, limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"payments": records,
	})
}

// SubscriptionRequest identifies the account for the subscription
// actions. Reactivation additionally carries the fresh credentials.
type SubscriptionRequest struct {
	AccountID   string `json:"account_id"`
	BillingKey  string `json:"billing_key,omitempty"`
	CustomerKey string `json:"customer_key,omitempty"`
}

// CancelSubscription handles POST /subscription/cancel
func (h *ConfirmHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.CancelSubscription(r.Context(), req.AccountID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ReactivateSubscription handles POST /subscription/reactivate
func (h *ConfirmHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ReactivateSubscription(r.Context(), req.AccountID, req.BillingKey, req.CustomerKey); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// respondServiceError maps service errors to HTTP responses without
// leaking gateway internals to the client.
func (h *ConfirmHandler) respondServiceError(w http.ResponseWriter, err error) {
	if paymentErr, ok := pkgerrors.AsPaymentError(err); ok {
		h.logger.Warn("payment gateway error",
			zap.String("code", paymentErr.Code),
			zap.String("category", string(paymentErr.Category)),
			zap.String("gateway_message", paymentErr.GatewayMessage),
		)

		switch paymentErr.Category {
		case pkgerrors.CategoryDeclined, pkgerrors.CategoryInsufficientFunds,
			pkgerrors.CategoryExpiredCard, pkgerrors.CategoryInvalidCard:
			h.respondError(w, http.StatusPaymentRequired, paymentErr.Message)
		case pkgerrors.CategoryInvalidRequest:
			h.respondError(w, http.StatusBadRequest, paymentErr.Message)
		default:
			h.respondError(w, http.StatusBadGateway, "payment gateway unavailable, please try again")
		}
		return
	}

	var validationErr *pkgerrors.ValidationError
	if errors.As(err, &validationErr) {
		h.respondError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	switch domain.GetErrorCode(err) {
	case domain.ErrorCodeSubNotFound, domain.ErrorCodePaymentNotFound:
		h.respondError(w, http.StatusNotFound, err.Error())
	case domain.ErrorCodePaymentAlreadyRefunded:
		h.respondError(w, http.StatusConflict, err.Error())
	case domain.ErrorCodeSubNotActive, domain.ErrorCodeSubSuspended:
		h.respondError(w, http.StatusConflict, err.Error())
	case domain.ErrorCodeValidationFailed, domain.ErrorCodeValidationMissingField,
		domain.ErrorCodeValidationAmountUnknown, domain.ErrorCodeSubMissingBillingData:
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("internal error handling payment request", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *ConfirmHandler) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *ConfirmHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
