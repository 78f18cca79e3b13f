package toss

import (
	"strings"

	pkgerrors "github.com/novalabs/billing-service/pkg/errors"
)

// ResponseCodeInfo contains detailed information about a gateway error code
type ResponseCodeInfo struct {
	Code               string
	Description        string
	IsRetriable        bool
	RequiresUserAction bool
	Category           pkgerrors.ErrorCategory
	UserMessage        string
}

// Error code map for the billing-key payment API
var gatewayResponseCodes = map[string]ResponseCodeInfo{
	"ALREADY_PROCESSED_PAYMENT": {
		Code:        "ALREADY_PROCESSED_PAYMENT",
		Description: "Payment was already confirmed for this key",
		Category:    pkgerrors.CategoryDuplicate,
		UserMessage: "Payment already completed",
	},

	"NOT_ENOUGH_BALANCE": {
		Code:               "NOT_ENOUGH_BALANCE",
		Description:        "Insufficient funds in the linked account",
		IsRetriable:        true,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryInsufficientFunds,
		UserMessage:        "Insufficient funds. Please use a different payment method or add funds to your account.",
	},

	"EXPIRED_CARD": {
		Code:               "EXPIRED_CARD",
		Description:        "Card has expired",
		IsRetriable:        true,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryExpiredCard,
		UserMessage:        "Your card has expired. Please update your payment method.",
	},

	"INVALID_CARD_NUMBER": {
		Code:               "INVALID_CARD_NUMBER",
		Description:        "Card number failed validation",
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryInvalidCard,
		UserMessage:        "Invalid card number. Please check your card details.",
	},

	"INVALID_STOPPED_CARD": {
		Code:               "INVALID_STOPPED_CARD",
		Description:        "Card has been reported stopped",
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryInvalidCard,
		UserMessage:        "This card cannot be used. Please contact your card company.",
	},

	"REJECT_CARD_PAYMENT": {
		Code:               "REJECT_CARD_PAYMENT",
		Description:        "Card company declined the charge",
		IsRetriable:        true,
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryDeclined,
		UserMessage:        "Your card was declined. Please contact your card company or use a different card.",
	},

	"EXCEED_MAX_DAILY_PAYMENT_COUNT": {
		Code:               "EXCEED_MAX_DAILY_PAYMENT_COUNT",
		Description:        "Daily payment count limit exceeded",
		IsRetriable:        true,
		Category:           pkgerrors.CategoryDeclined,
		UserMessage:        "Daily payment limit exceeded. Please try again tomorrow.",
	},

	"INVALID_BILL_KEY": {
		Code:               "INVALID_BILL_KEY",
		Description:        "Stored billing key is no longer valid",
		RequiresUserAction: true,
		Category:           pkgerrors.CategoryInvalidRequest,
		UserMessage:        "Your stored payment method is no longer valid. Please register your card again.",
	},

	"NOT_FOUND_PAYMENT": {
		Code:        "NOT_FOUND_PAYMENT",
		Description: "No payment exists for the given key",
		Category:    pkgerrors.CategoryInvalidRequest,
		UserMessage: "Payment not found.",
	},

	"UNAUTHORIZED_KEY": {
		Code:        "UNAUTHORIZED_KEY",
		Description: "API key rejected by the gateway",
		Category:    pkgerrors.CategoryInvalidRequest,
		UserMessage: "Payment could not be processed. Please try again later.",
	},

	"PROVIDER_ERROR": {
		Code:        "PROVIDER_ERROR",
		Description: "Upstream card network error",
		IsRetriable: true,
		Category:    pkgerrors.CategorySystemError,
		UserMessage: "A temporary error occurred. Please try again.",
	},

	"FAILED_INTERNAL_SYSTEM_PROCESSING": {
		Code:        "FAILED_INTERNAL_SYSTEM_PROCESSING",
		Description: "Gateway internal processing failure",
		IsRetriable: true,
		Category:    pkgerrors.CategorySystemError,
		UserMessage: "A temporary error occurred. Please try again.",
	},
}

// GetResponseCode looks up a gateway error code, returning a generic
// declined entry for unknown codes.
func GetResponseCode(code string) ResponseCodeInfo {
	if info, ok := gatewayResponseCodes[code]; ok {
		return info
	}
	return ResponseCodeInfo{
		Code:        code,
		Description: "Unrecognized gateway error code",
		IsRetriable: true,
		Category:    pkgerrors.CategoryDeclined,
		UserMessage: "Payment failed. Please try again or use a different payment method.",
	}
}

// ToPaymentError converts response code info to a PaymentError
func (r ResponseCodeInfo) ToPaymentError(gatewayMessage string) *pkgerrors.PaymentError {
	err := pkgerrors.NewPaymentError(r.Code, r.UserMessage, r.Category, r.IsRetriable)
	err.GatewayMessage = gatewayMessage
	return err
}

// IsAlreadyProcessed reports whether the gateway response identifies a
// duplicate confirmation of a payment that was already captured. The
// structured code is authoritative; the message-substring check is a
// legacy fallback for older gateway API versions that only reported the
// condition in free text.
func IsAlreadyProcessed(code, message string) bool {
	if code == "ALREADY_PROCESSED_PAYMENT" {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "already processed") ||
		strings.Contains(lower, "is already in progress") ||
		strings.Contains(lower, "같은 요청이 처리 중")
}
