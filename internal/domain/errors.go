package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Subscription Errors (SUB_*)
	ErrorCodeSubNotFound           ErrorCode = "SUB_NOT_FOUND"
	ErrorCodeSubNotActive          ErrorCode = "SUB_NOT_ACTIVE"
	ErrorCodeSubMissingBillingData ErrorCode = "SUB_MISSING_BILLING_DATA"
	ErrorCodeSubSuspended          ErrorCode = "SUB_SUSPENDED"

	// Payment Errors (PAYMENT_*)
	ErrorCodePaymentNotFound        ErrorCode = "PAYMENT_NOT_FOUND"
	ErrorCodePaymentAlreadyRefunded ErrorCode = "PAYMENT_ALREADY_REFUNDED"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayError     ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout   ErrorCode = "GATEWAY_TIMEOUT"
	ErrorCodeGatewayDeclined  ErrorCode = "GATEWAY_DECLINED"
	ErrorCodeGatewayDuplicate ErrorCode = "GATEWAY_DUPLICATE"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrorCodeValidationAmountUnknown ErrorCode = "VALIDATION_AMOUNT_UNKNOWN"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationMissingField ||
		code == ErrorCodeValidationAmountUnknown
}

// IsGatewayError checks if an error is a payment gateway error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError ||
		code == ErrorCodeGatewayTimeout ||
		code == ErrorCodeGatewayDeclined
}

// Structured error instances
var (
	ErrSubscriptionNotFound   = NewDomainError(ErrorCodeSubNotFound, "subscription not found")
	ErrSubscriptionNotActive  = NewDomainError(ErrorCodeSubNotActive, "subscription is not active")
	ErrSubscriptionSuspended  = NewDomainError(ErrorCodeSubSuspended, "subscription is suspended")
	ErrMissingBillingData     = NewDomainError(ErrorCodeSubMissingBillingData, "subscription is missing billing credentials")
	ErrPaymentNotFound        = NewDomainError(ErrorCodePaymentNotFound, "payment record not found")
	ErrPaymentAlreadyRefunded = NewDomainError(ErrorCodePaymentAlreadyRefunded, "payment has already been refunded")
	ErrGatewayError           = NewDomainError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayTimedOut        = NewDomainError(ErrorCodeGatewayTimeout, "payment gateway timeout")
	ErrGatewayDeclined        = NewDomainError(ErrorCodeGatewayDeclined, "payment declined by gateway")
	ErrValidationFailed       = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrAmountUnknown          = NewDomainError(ErrorCodeValidationAmountUnknown, "amount does not match any plan price")
	ErrInternalError          = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError          = NewDomainError(ErrorCodeDatabaseError, "database error")
)
