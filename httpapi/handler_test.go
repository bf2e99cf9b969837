package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/app"
	"github.com/cratery/registry/auth"
	"github.com/cratery/registry/blobstore/fs"
	"github.com/cratery/registry/catalog"
)

// fakeCatalog is a minimal catalog.Catalog fake, following the same
// embed-nil-interface partial-fake idiom app/app_test.go and
// docgen/orchestrator_test.go use.
type fakeCatalog struct {
	catalog.Catalog

	pkg      *registry.Package
	versions []*registry.PackageVersion
	hits     []catalog.SearchHit
}

func (f *fakeCatalog) GetPackage(ctx context.Context, lower string) (*registry.Package, error) {
	if f.pkg == nil || f.pkg.LowercaseName != lower {
		return nil, registry.New(registry.ErrNotFound, "GetPackage", "no such crate", nil)
	}
	return f.pkg, nil
}

func (f *fakeCatalog) ListVersions(ctx context.Context, lower string) ([]*registry.PackageVersion, error) {
	return f.versions, nil
}

func (f *fakeCatalog) Search(ctx context.Context, query string, perPage int, includeDeprecated bool) ([]catalog.SearchHit, error) {
	return f.hits, nil
}

func newTestHandler(cat catalog.Catalog) *HTTP {
	blobs := fs.New("/tmp")
	application := app.New(cat, blobs, nil, &auth.Plane{}, auth.OAuthConfig{}, nil, nil)
	return NewHandler(application, nil, nil, "localhost")
}

func TestSearchReturnsEmptyResultSet(t *testing.T) {
	h := newTestHandler(&fakeCatalog{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/crates?q=demo", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Crates) != 0 || body.Meta.Total != 0 {
		t.Fatalf("expected an empty result set, got %+v", body)
	}
}

func TestGetPackageReturns404ForUnknownCrate(t *testing.T) {
	h := newTestHandler(&fakeCatalog{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/crates/does-not-exist", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var body cargoErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Errors) != 1 {
		t.Fatalf("expected a cargo error envelope, got %+v", body)
	}
}

func TestGetPackageReturnsKnownCrate(t *testing.T) {
	cat := &fakeCatalog{
		pkg: &registry.Package{Name: "demo-crate", LowercaseName: "demo-crate"},
		versions: []*registry.PackageVersion{
			{Package: "demo-crate", Version: "1.0.0"},
		},
	}
	h := newTestHandler(cat)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/crates/demo-crate", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body cratePackageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Package == nil || body.Package.Name != "demo-crate" || len(body.Versions) != 1 {
		t.Fatalf("unexpected package response: %+v", body)
	}
}

func TestPublishRequiresCredentials(t *testing.T) {
	h := newTestHandler(&fakeCatalog{})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/crates/new", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an unauthenticated publish, got %d: %s", rec.Code, rec.Body.String())
	}
}
