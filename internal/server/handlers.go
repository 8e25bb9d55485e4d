package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	gkmiddleware "github.com/terraconstructs/gatekeeper/internal/middleware"
	"github.com/terraconstructs/gatekeeper/internal/services/iam"
	"github.com/terraconstructs/gatekeeper/internal/services/validation"
)

const maxBodyBytes = 1 << 20

// Handlers serves the HTTP surface on top of the IAM service.
type Handlers struct {
	iam       iam.Service
	validator validation.Validator
	log       logrus.FieldLogger
}

// NewHandlers wires handlers to their collaborators.
func NewHandlers(svc iam.Service, validator validation.Validator, log logrus.FieldLogger) *Handlers {
	return &Handlers{iam: svc, validator: validator, log: log}
}

// decode reads the body, validates it against schema and unmarshals it into dst.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, fmt.Errorf("%w: request body too large", auth.ErrBadRequest))
			return false
		}
		h.writeError(w, r, fmt.Errorf("%w: read body: %v", auth.ErrBadRequest, err))
		return false
	}
	if err := h.validator.Validate(schema, body); err != nil {
		h.writeError(w, r, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", auth.ErrBadRequest, err))
		return false
	}
	return true
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	gkmiddleware.WriteError(w, r, h.log, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	gkmiddleware.WriteJSON(w, status, v)
}

// principal returns the caller resolved by the gate.
func (h *Handlers) principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.GetPrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, fmt.Errorf("%w: not authenticated", auth.ErrUnauthorized))
		return nil, false
	}
	return p, true
}

// pagination reads limit and offset query parameters. Missing values are zero.
func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: invalid limit %q", auth.ErrBadRequest, v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: invalid offset %q", auth.ErrBadRequest, v)
		}
	}
	return limit, offset, nil
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", auth.ErrBadRequest, msg)
}
