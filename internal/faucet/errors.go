package faucet

import (
	"fmt"
	"net/http"

	"faucet/internal/models"
)

// ServiceError represents errors from the disbursement flow with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewRateLimitExceededError() *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeRateLimitExceeded,
		Message:    "request quota exceeded, try again later",
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewFaucetDisabledError() *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeFaucetDisabled,
		Message:    "the faucet is currently disabled",
		StatusCode: http.StatusServiceUnavailable,
	}
}

func NewInsufficientBalanceError(balance, amount float64) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInsufficientBalance,
		Message:    fmt.Sprintf("funding source balance %g is below the faucet amount %g", balance, amount),
		StatusCode: http.StatusServiceUnavailable,
	}
}

func NewTransferFailedError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeTransferFailed,
		Message:    "token transfer failed",
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
