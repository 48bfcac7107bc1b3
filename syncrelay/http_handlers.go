// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// ClientAuthenticator extracts both user and device identity from HTTP
// requests. Implementations should validate auth (e.g., JWT) and provide
// both identifiers.
type ClientAuthenticator interface {
	GetUserID(r *http.Request) (string, error)
	GetDeviceID(r *http.Request) (string, error)
}

// HTTPHandlers provides the HTTP surface of the relay: delta submission,
// stats polling and the websocket device channel.
type HTTPHandlers struct {
	relay         *Relay
	authenticator ClientAuthenticator
	logger        *slog.Logger
}

// NewHTTPHandlers creates a new instance of relay handlers
func NewHTTPHandlers(relay *Relay, authenticator ClientAuthenticator, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{
		relay:         relay,
		authenticator: authenticator,
		logger:        logger,
	}
}

// HandleDelta processes a single delta submitted over plain HTTP. Devices
// with a live websocket channel submit through it instead; this endpoint
// serves clients that only push (e.g., background jobs, offline queues
// draining on reconnect).
func (h *HTTPHandlers) HandleDelta(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	userID, err := h.authenticator.GetUserID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}
	deviceID, err := h.authenticator.GetDeviceID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	var delta DeltaChange
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse delta")
		return
	}

	entityID, err := h.relay.HandleDeltaChange(r.Context(), userID, deviceID, &delta)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			h.writeError(w, http.StatusBadRequest, "invalid_delta", err.Error())
		case errors.Is(err, ErrStorage):
			h.logger.Error("Failed to persist delta", "error", err, "user_id", userID, "device_id", deviceID)
			h.writeError(w, http.StatusServiceUnavailable, "storage_failed", "Failed to persist delta")
		default:
			h.logger.Error("Failed to process delta", "error", err, "user_id", userID, "device_id", deviceID)
			h.writeError(w, http.StatusInternalServerError, "delta_failed", "Failed to process delta")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(DeltaResponse{Applied: entityID != "", EntityID: entityID}); err != nil {
		h.logger.Error("Failed to encode delta response", "error", err, "device_id", deviceID)
	}
}

// HandleStats returns the relay's observability snapshot.
func (h *HTTPHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.relay.Stats()); err != nil {
		h.logger.Error("Failed to encode stats response", "error", err)
	}
}

// writeError writes a standardized error response
func (h *HTTPHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
