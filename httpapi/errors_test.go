package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	registry "github.com/cratery/registry"
)

func TestWriteErrorCargoEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/crates/demo", nil)
	err := registry.New(registry.ErrNotFound, "getPackage", "no such crate", nil)

	WriteError(rec, req, err, true)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body cargoErrorEnvelope
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &body); decodeErr != nil {
		t.Fatalf("decode response: %v", decodeErr)
	}
	if len(body.Errors) != 1 || body.Errors[0].Detail == "" {
		t.Fatalf("unexpected cargo envelope: %+v", body)
	}
}

func TestWriteErrorControlPlaneEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	err := registry.New(registry.ErrForbidden, "me", "admin required", nil)

	WriteError(rec, req, err, false)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body controlPlaneError
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &body); decodeErr != nil {
		t.Fatalf("decode response: %v", decodeErr)
	}
	if body.TraceID == "" {
		t.Fatal("expected a trace id to be set")
	}
}

func TestWriteErrorUnclassifiedDefaultsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/crates/demo", nil)

	WriteError(rec, req, errors.New("boom"), true)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for an unclassified error, got %d", rec.Code)
	}
}

func TestWriteErrorConflictMaps408(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/crates/demo", nil)
	err := registry.New(registry.ErrConflict, "CreateUser", "login already taken", nil)

	WriteError(rec, req, err, false)

	if rec.Code != http.StatusRequestTimeout {
		t.Fatalf("expected 408 per spec's Conflict mapping, got %d", rec.Code)
	}
}

func TestDownloadAuthErrorRemapsUnauthorizedToForbidden(t *testing.T) {
	err := registry.New(registry.ErrUnauthorized, "Download", "no credentials", nil)

	remapped := downloadAuthError(err)

	if registry.KindOf(remapped) != registry.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", registry.KindOf(remapped))
	}
}

func TestDownloadAuthErrorPassesThroughOtherKinds(t *testing.T) {
	err := registry.New(registry.ErrNotFound, "Download", "no such version", nil)

	remapped := downloadAuthError(err)

	if registry.KindOf(remapped) != registry.ErrNotFound {
		t.Fatalf("expected ErrNotFound to pass through unchanged, got %v", registry.KindOf(remapped))
	}
}
