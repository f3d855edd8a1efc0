package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"stockwatch/internal/notifier"
	"stockwatch/internal/reader"
	"stockwatch/internal/storage"
	"stockwatch/internal/task/engine"
	logx "stockwatch/pkg/logx"
)

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data    any       `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := mapError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Err(err),
		)
	}
	writeJSON(w, status, Envelope{Error: &apiErr})
}

func mapError(err error) (int, APIError) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "Validation failed",
			Details: []FieldError{{Field: verr.Field, Message: verr.Message}},
		}
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, APIError{Code: "not_found", Message: "The requested resource was not found"}
	case errors.Is(err, storage.ErrInvalid), errors.Is(err, errBadRequest), errors.Is(err, notifier.ErrRender):
		return http.StatusBadRequest, APIError{Code: "invalid_input", Message: err.Error()}
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, APIError{Code: "conflict", Message: "The item changed concurrently; retry"}
	case errors.Is(err, engine.ErrOverlapSkip):
		return http.StatusConflict, APIError{Code: "busy", Message: "A check cycle is already queued or running"}
	case errors.Is(err, engine.ErrDisabled), errors.Is(err, engine.ErrStopped),
		errors.Is(err, engine.ErrStopping), errors.Is(err, engine.ErrQueueFull):
		return http.StatusServiceUnavailable, APIError{Code: "unavailable", Message: err.Error()}
	case errors.Is(err, reader.ErrNotFoundInPage), errors.Is(err, reader.ErrParse),
		errors.Is(err, reader.ErrInvalidRule):
		return http.StatusUnprocessableEntity, APIError{Code: "read_failed", Message: err.Error()}
	case errors.Is(err, reader.ErrFetch):
		return http.StatusBadGateway, APIError{Code: "fetch_failed", Message: err.Error()}
	default:
		return http.StatusInternalServerError, APIError{Code: "internal_error", Message: "An unexpected error occurred"}
	}
}
