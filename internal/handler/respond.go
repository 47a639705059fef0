// Package handler provides the HTTP handlers for the fund service.
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	apperrors "stokvel/pkg/errors"
)

// Logger is the leveled structured logger handlers report through.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, errors map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errors,
	})
}

// respondServiceError maps domain sentinels onto HTTP statuses. Unknown
// errors stay opaque to the client.
func respondServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		respondError(w, status, "Internal server error")
		return
	}
	respondError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusForbidden
	case apperrors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case apperrors.Is(err, apperrors.ErrAccountNotFound),
		apperrors.Is(err, apperrors.ErrRoundNotFound),
		apperrors.Is(err, apperrors.ErrOperatorNotFound):
		return http.StatusNotFound
	case apperrors.Is(err, apperrors.ErrAlreadyRequested),
		apperrors.Is(err, apperrors.ErrOperatorExists),
		apperrors.Is(err, apperrors.ErrDuplicateRequest):
		return http.StatusConflict
	case apperrors.Is(err, apperrors.ErrZeroAmount),
		apperrors.Is(err, apperrors.ErrCapacityExceeded),
		apperrors.Is(err, apperrors.ErrInsufficientBalance),
		apperrors.Is(err, apperrors.ErrNoPendingRequest),
		apperrors.Is(err, apperrors.ErrRoundOutOfOrder),
		apperrors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			respondError(w, http.StatusBadRequest, "Request body is required")
			return err
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return err
	}
	return nil
}
