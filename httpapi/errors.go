// Package httpapi registers the Cargo-facing, control-plane, index-serving
// and docgen-worker HTTP routes on a *http.ServeMux, grounded on the
// teacher's libvuln.NewHandler / libvuln/handler.go pattern: a struct
// embedding *http.ServeMux, method-prefixed route patterns (one handler per
// method and path), and a jsonerr-shaped error envelope (spec §7).
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	registry "github.com/cratery/registry"
)

// controlPlaneError is spec §7's general failure body: { message, details?,
// trace_id }.
type controlPlaneError struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	TraceID string `json:"trace_id"`
}

// cargoErrorEnvelope is the canonical Cargo registry error shape, used on
// every /api/v1/crates/* endpoint.
type cargoErrorEnvelope struct {
	Errors []cargoError `json:"errors"`
}

type cargoError struct {
	Detail string `json:"detail"`
}

// WriteError maps err to its HTTP status via registry.KindOf, attaches a
// trace id, logs backend-kind failures, and writes the body in the shape
// cargoEnvelope selects.
func WriteError(w http.ResponseWriter, r *http.Request, err error, cargoEnvelope bool) {
	kind := registry.KindOf(err)
	status := kind.HTTPStatus()
	trace := uuid.NewString()

	if kind == registry.ErrBackend {
		zlog.Error(r.Context()).Err(err).Str("trace_id", trace).Msg("httpapi: internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if cargoEnvelope {
		json.NewEncoder(w).Encode(cargoErrorEnvelope{Errors: []cargoError{{Detail: err.Error()}}})
		return
	}
	json.NewEncoder(w).Encode(controlPlaneError{Message: err.Error(), TraceID: trace})
}

// writeJSON encodes v as the response body, logging (but not re-writing a
// header for) an encode failure, matching libvuln.HTTP's handler style.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn(r.Context()).Err(err).Msg("httpapi: failed to encode response")
	}
}

// downloadAuthError remaps ErrUnauthorized to ErrForbidden for the
// download endpoint per spec §7's "download endpoint explicitly maps 401
// to 403 for Cargo compatibility".
func downloadAuthError(err error) error {
	var e *registry.Error
	if errors.As(err, &e) && e.Kind == registry.ErrUnauthorized {
		return registry.New(registry.ErrForbidden, e.Op, e.Message, e.Inner)
	}
	return err
}
