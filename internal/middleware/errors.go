package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/terraconstructs/gatekeeper/internal/auth"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// StatusFor maps the domain error taxonomy onto HTTP status codes.
// Anything unrecognized is a 500.
func StatusFor(err error) int {
	var scopeErr *auth.ScopeError
	switch {
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.As(err, &scopeErr), errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrBadRequest),
		errors.Is(err, auth.ErrInvalidProvider),
		errors.Is(err, auth.ErrInvalidAssertion):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as a JSON error reply. Server errors are logged in
// full and answered with an opaque message.
func WriteError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	status := StatusFor(err)
	detail := err.Error()

	switch status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
		if errors.Is(err, auth.ErrInvalidToken) || !errors.Is(err, auth.ErrUnauthorized) {
			detail = auth.ErrUnauthorized.Error()
		}
	case http.StatusForbidden:
		var scopeErr *auth.ScopeError
		if errors.As(err, &scopeErr) {
			w.Header().Set("WWW-Authenticate", scopeErr.Challenge())
		}
	case http.StatusInternalServerError:
		log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		detail = "internal server error"
	}

	WriteJSON(w, status, ErrorResponse{Detail: detail})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
