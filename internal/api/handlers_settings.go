package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"faucet/internal/models"
	"faucet/internal/storage"
)

// CreateSystemSetting handles creation of the singleton configuration
// POST /api/v1/system-setting
// Requires authentication and 'admin' permission
func (h *Handlers) CreateSystemSetting(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSystemSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}

	setting := req.ToSetting()
	if err := setting.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	if err := h.storage.CreateSystemSetting(r.Context(), setting); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			h.writeErrorResponse(w, http.StatusConflict, models.ErrorCodeConflict, "System setting already exists")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to create system setting")
		return
	}

	created, err := h.storage.GetSystemSetting(r.Context())
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to load system setting")
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, created)
}

// GetSystemSetting handles retrieval of the singleton configuration
// GET /api/v1/system-setting
// Requires authentication and 'read' permission
func (h *Handlers) GetSystemSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := h.storage.GetSystemSetting(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeNotFound, "System setting not configured")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to load system setting")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, setting)
}

// UpdateSystemSetting handles replacement of the singleton configuration
// PUT /api/v1/system-setting
// Requires authentication and 'admin' permission
func (h *Handlers) UpdateSystemSetting(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSystemSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}

	setting := req.ToSetting()
	if err := setting.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	if err := h.storage.UpdateSystemSetting(r.Context(), setting); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeNotFound, "System setting not configured")
			return
		}
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to update system setting")
		return
	}

	updated, err := h.storage.GetSystemSetting(r.Context())
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to load system setting")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, updated)
}
