// Package respond writes JSON responses and maps domain errors to HTTP statuses.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/webforge/backend/internal/models"
)

type errorBody struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Status maps an error to the HTTP status a client should see.
func Status(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientCredit):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrArtifactFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrStateConflict), errors.Is(err, models.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrDownstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Error writes err with its mapped status. Unexpected errors are logged and hidden.
func Error(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	status := Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(op+" failed", "error", err)
		msg = op + " failed"
	}
	JSON(w, status, errorBody{Error: msg})
}

func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, errorBody{Error: msg})
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.Invalid("invalid JSON: %v", err)
	}
	return nil
}

// PathID parses the {name} path value as a UUID.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, models.Invalid("bad %s", name)
	}
	return id, nil
}

// QueryID parses an optional UUID query parameter.
func QueryID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, models.Invalid("bad %s", name)
	}
	return &id, nil
}
