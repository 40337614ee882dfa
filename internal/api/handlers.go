package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"faucet/internal/analytics"
	"faucet/internal/faucet"
	"faucet/internal/models"
	"faucet/internal/quota"
	"faucet/internal/storage"
)

// Handlers contains HTTP handlers for the faucet API
type Handlers struct {
	faucetService    *faucet.Service
	analyticsService *analytics.Service
	storage          storage.Storage
	quotaStore       quota.Store
	version          string
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	faucetService *faucet.Service,
	analyticsService *analytics.Service,
	store storage.Storage,
	quotaStore quota.Store,
	version string,
) *Handlers {
	return &Handlers{
		faucetService:    faucetService,
		analyticsService: analyticsService,
		storage:          store,
		quotaStore:       quotaStore,
		version:          version,
	}
}

// Dispense handles disbursement requests
// POST /api/v1/faucet
func (h *Handlers) Dispense(w http.ResponseWriter, r *http.Request) {
	var req models.FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}
	req.IPAddress = getClientIP(r)
	req.UserAgent = r.Header.Get("User-Agent")

	response, err := h.faucetService.Dispense(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetAddress handles funding source address requests
// GET /api/v1/address
func (h *Handlers) GetAddress(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, &models.AddressResponse{
		Address: h.faucetService.FundingAddress(),
	})
}

// GetBalance handles funding source balance requests
// GET /api/v1/balance
func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.faucetService.FundingBalance(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, &models.BalanceResponse{
		Address: h.faucetService.FundingAddress(),
		Balance: balance,
	})
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.storage.Ping(ctx); err != nil {
		response.AddComponent("storage", models.StatusUnhealthy, err.Error())
	} else {
		response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
	}

	if err := h.quotaStore.Ping(ctx); err != nil {
		response.AddComponent("quota", models.StatusDegraded, err.Error())
	} else {
		response.AddComponent("quota", models.StatusHealthy, "Quota store is operational")
	}

	if _, err := h.faucetService.FundingBalance(ctx); err != nil {
		response.AddComponent("ledger", models.StatusDegraded, "Funding source unreachable")
	} else {
		response.AddComponent("ledger", models.StatusHealthy, "Funding source is reachable")
	}

	status := http.StatusOK
	if response.Status == models.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, status, response)
}

// writeServiceError maps a service error onto the HTTP response.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *faucet.ServiceError
	if errors.As(err, &svcErr) {
		h.writeErrorResponse(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}
	h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing else to send.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}
