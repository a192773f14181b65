package http

import (
	"context"
	"errors"
	"net/http"

	"kharcha/internal/auth"
	"kharcha/internal/core"
	"kharcha/internal/log"
	"kharcha/internal/middleware/trace"
	"kharcha/internal/services"
	"kharcha/internal/storage"
)

// errSuperseded answers a summary request overtaken by a newer one for the
// same view.
var errSuperseded = errors.New("superseded by a newer request")

// statusFor maps a service error to its HTTP status and the message shown
// to the client. Infrastructure failures never leak their detail.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errMalformed):
		return http.StatusBadRequest, "malformed request body"
	case errors.Is(err, auth.ErrNotAuthenticated),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrRevokedToken):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, auth.ErrInvalidCredentials.Error()
	case errors.Is(err, core.ErrDuplicateName):
		return http.StatusConflict, core.ErrDuplicateName.Error()
	case errors.Is(err, auth.ErrEmailExists):
		return http.StatusConflict, auth.ErrEmailExists.Error()
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, err.Error()
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "conflicting change"
	case errors.Is(err, errSuperseded):
		return http.StatusConflict, errSuperseded.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request interrupted, please retry"
	case errors.Is(err, services.ErrCarryoverInsert):
		return http.StatusBadGateway, "could not carry over last month's balance"
	default:
		return http.StatusBadGateway, "storage unavailable, please retry"
	}
}

// writeError logs err and replies with its mapped status. Nothing is
// written once the request's own context is done; the client is gone.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}

	status, msg := statusFor(err)
	body := errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}

	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "")
	fields[log.FieldStatusCode] = status
	if status >= http.StatusInternalServerError {
		logger.LogError(r.Context(), "Request failed", err, r.Pattern, fields)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", fields.WithError(err).ToSlice()...)
	}

	writeJSON(w, r, status, body)
}
