package cron

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/novalabs/billing-service/internal/services/billing"
	"github.com/novalabs/billing-service/pkg/timeutil"
)

// BillingHandler handles cron job endpoints for the subscription billing sweep
type BillingHandler struct {
	scheduler  *billing.Scheduler
	config     billing.SchedulerConfig
	logger     *zap.Logger
	cronSecret string // Secret token for authenticating cron requests
}

// NewBillingHandler creates a new billing cron handler
func NewBillingHandler(
	scheduler *billing.Scheduler,
	config billing.SchedulerConfig,
	logger *zap.Logger,
	cronSecret string,
) *BillingHandler {
	return &BillingHandler{
		scheduler:  scheduler,
		config:     config,
		logger:     logger,
		cronSecret: cronSecret,
	}
}

// RunSweepRequest represents the request body for a manual sweep trigger
type RunSweepRequest struct {
	AsOf      *string `json:"as_of"`      // Optional: RFC3339 timestamp, defaults to now
	BatchSize *int32  `json:"batch_size"` // Optional: defaults to the configured batch size
}

// RunSweepResponse represents the response from a billing sweep
type RunSweepResponse struct {
	Success     bool                  `json:"success"`
	Processed   int                   `json:"processed"`
	Succeeded   int                   `json:"succeeded"`
	Failed      int                   `json:"failed"`
	Suspended   int                   `json:"suspended"`
	Skipped     int                   `json:"skipped"`
	Details     []billing.SweepDetail `json:"details,omitempty"`
	ProcessedAt string                `json:"processed_at"`
}

// RunSweep handles the POST /cron/billing endpoint. The external
// scheduler calls it on its interval; the handler is safe to call again
// while a previous sweep's effects are settling because successful
// charges push the billing date out immediately.
func (h *BillingHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Billing sweep triggered",
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RunSweepRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("Failed to parse request body",
				zap.Error(err),
			)
			// Continue with defaults if parsing fails
		}
	}

	asOf := timeutil.Now()
	if req.AsOf != nil {
		parsed, err := time.Parse(time.RFC3339, *req.AsOf)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid as_of format: %v", err))
			return
		}
		asOf = parsed.UTC()
	}

	batchSize := h.config.BatchSize
	if req.BatchSize != nil {
		if *req.BatchSize < 1 || *req.BatchSize > 1000 {
			h.respondError(w, http.StatusBadRequest, "batch_size must be between 1 and 1000")
			return
		}
		batchSize = *req.BatchSize
	}

	result, err := h.scheduler.RunSweep(r.Context(), asOf, batchSize)
	if err != nil {
		h.logger.Error("Billing sweep failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "billing sweep failed")
		return
	}

	resp := RunSweepResponse{
		Success:     result.Failed == 0,
		Processed:   result.Processed,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		Suspended:   result.Suspended,
		Skipped:     result.Skipped,
		Details:     result.Details,
		ProcessedAt: timeutil.Now().Format(time.RFC3339),
	}

	h.logger.Info("Billing sweep completed",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)

	w.Header().Set("Content-Type", "application/json")
	if resp.Success {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusPartialContent) // 206 indicates partial success
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// authenticateRequest verifies the cron request is authorized
func (h *BillingHandler) authenticateRequest(r *http.Request) bool {
	cronSecret := r.Header.Get("X-Cron-Secret")
	if cronSecret != "" && cronSecret == h.cronSecret {
		return true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "Bearer "+h.cronSecret {
		return true
	}

	// Check query parameter (less secure, for development only)
	querySecret := r.URL.Query().Get("secret")
	if querySecret != "" && querySecret == h.cronSecret {
		h.logger.Warn("Using query parameter authentication (insecure)",
			zap.String("remote_addr", r.RemoteAddr),
		)
		return true
	}

	return false
}

// respondError sends an error response
func (h *BillingHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := map[string]interface{}{
		"success": false,
		"error":   message,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}

// HealthCheck handles GET /cron/health for monitoring
func (h *BillingHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := map[string]interface{}{
		"status": "healthy",
		"time":   timeutil.Now().Format(time.RFC3339),
	}

	json.NewEncoder(w).Encode(resp)
}
