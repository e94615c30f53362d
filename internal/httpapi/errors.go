package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

type errorBody struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// writeError writes a JSON error body carrying the request's correlation id
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg, CorrelationID: GetCorrelationID(r.Context())})
}

// statusFor maps the engine's error taxonomy onto HTTP status codes
func statusFor(err error) int {
	var (
		storage   *model.StorageError
		corrupted *model.CorruptedStateError
	)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidEvent),
		errors.Is(err, model.ErrInvalidResolution),
		errors.Is(err, model.ErrResolutionDataRequired):
		return http.StatusBadRequest
	case model.IsAlreadyResolved(err):
		return http.StatusConflict
	case errors.As(err, &corrupted):
		return http.StatusUnprocessableEntity
	case model.IsTransient(err):
		return http.StatusServiceUnavailable
	case model.IsPermanent(err):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.As(err, &storage):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes the mapped status. 5xx bodies hide storage details.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= 500 && code != http.StatusServiceUnavailable {
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = http.StatusText(code)
	} else {
		log.Ctx(r.Context()).Debug().Err(err).Int("status", code).Msg("request rejected")
	}
	writeError(w, r, code, msg)
}
