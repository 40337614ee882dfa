// Package models - API response types and error handling.
// All endpoints share the same JSON envelope conventions: optional fields use
// omitempty, errors carry a machine-readable code, timestamps are RFC3339.
package models

import (
	"time"
)

// Error codes returned in ErrorResponse.Code.
const (
	ErrorCodeInvalidRequest      = "INVALID_REQUEST"
	ErrorCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrorCodeFaucetDisabled      = "FAUCET_DISABLED"
	ErrorCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrorCodeTransferFailed      = "TRANSFER_FAILED"
	ErrorCodeNotFound            = "NOT_FOUND"
	ErrorCodeConflict            = "CONFLICT"
	ErrorCodeUnauthorized        = "UNAUTHORIZED"
	ErrorCodeForbidden           = "FORBIDDEN"
	ErrorCodeInternalError       = "INTERNAL_ERROR"
)

// FaucetResponse is returned on a successful disbursement.
type FaucetResponse struct {
	TxHash        string    `json:"txHash"`
	WalletAddress string    `json:"walletAddress"`
	Amount        float64   `json:"amount"`
	ResponseTime  int64     `json:"responseTime"`
	Timestamp     time.Time `json:"timestamp"`
}

// AddressResponse reports the funding source address.
type AddressResponse struct {
	Address string `json:"address"`
}

// BalanceResponse reports the funding source balance in whole tokens.
type BalanceResponse struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

// ErrorResponse provides structured error information.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Code      string            `json:"code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
}

// NewErrorResponse creates an error response with the current timestamp.
func NewErrorResponse(message, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthCheckResponse is the /health payload.
type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth reports the state of a single dependency.
type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthCheckResponse creates a health response with the given overall status.
func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]ComponentHealth),
	}
}

// AddComponent records a component check. A non-healthy component degrades the
// overall status.
func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if status != StatusHealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
	if status == StatusUnhealthy {
		h.Status = StatusUnhealthy
	}
}
