package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"faucet/internal/models"
)

// GetTransactionStats handles per-status aggregate requests
// GET /api/v1/analytics/stats?days=7
func (h *Handlers) GetTransactionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analyticsService.TransactionStats(r.Context(), intQueryParam(r, "days"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to query transaction stats")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, stats)
}

// GetTopSources handles top requesting IP requests
// GET /api/v1/analytics/sources?days=7&limit=10
func (h *Handlers) GetTopSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.analyticsService.TopSources(r.Context(), intQueryParam(r, "days"), intQueryParam(r, "limit"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to query top sources")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, sources)
}

// GetGeographicDistribution handles per-country aggregate requests
// GET /api/v1/analytics/geographic?days=7
func (h *Handlers) GetGeographicDistribution(w http.ResponseWriter, r *http.Request) {
	distribution, err := h.analyticsService.GeographicDistribution(r.Context(), intQueryParam(r, "days"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to query geographic distribution")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, distribution)
}

// GetTopCountries handles ranked country requests with traffic share
// GET /api/v1/analytics/countries?days=7&limit=10
func (h *Handlers) GetTopCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.analyticsService.TopCountries(r.Context(), intQueryParam(r, "days"), intQueryParam(r, "limit"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to query top countries")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, countries)
}

// GetHourlyDistribution handles per-hour aggregate requests
// GET /api/v1/analytics/hourly?days=7
func (h *Handlers) GetHourlyDistribution(w http.ResponseWriter, r *http.Request) {
	hourly, err := h.analyticsService.HourlyDistribution(r.Context(), intQueryParam(r, "days"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to query hourly distribution")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, hourly)
}

// GetPerformanceStats handles response-time distribution requests
// GET /api/v1/analytics/performance?days=7
func (h *Handlers) GetPerformanceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analyticsService.PerformanceStats(r.Context(), intQueryParam(r, "days"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to query performance stats")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, stats)
}

// GetTransactionHistory handles filtered record listing
// GET /api/v1/analytics/history?walletAddress=0x..&ipAddress=..&limit=50
func (h *Handlers) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.analyticsService.History(
		r.Context(),
		r.URL.Query().Get("walletAddress"),
		r.URL.Query().Get("ipAddress"),
		intQueryParam(r, "limit"),
	)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}
	h.writeJSONResponse(w, http.StatusOK, history)
}

// GetWalletActivity handles per-wallet record listing
// GET /api/v1/analytics/wallet/{address}?days=30
func (h *Handlers) GetWalletActivity(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	activity, err := h.analyticsService.WalletActivity(r.Context(), address, intQueryParam(r, "days"))
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}
	h.writeJSONResponse(w, http.StatusOK, activity)
}

// intQueryParam parses an integer query parameter, returning 0 when absent or
// malformed so the service applies its default.
func intQueryParam(r *http.Request, name string) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}
