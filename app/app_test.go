package app

import (
	"context"
	"os/exec"
	"testing"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/auth"
	"github.com/cratery/registry/blobstore/fs"
	"github.com/cratery/registry/catalog"
	"github.com/cratery/registry/index"
)

// fakeCatalog is an in-memory catalog.Catalog: a partial fake built the way
// docgen's tests build one, embedding a nil catalog.Catalog so only the
// methods Publish/Yank/RemoveOwner actually exercise need overrides; any
// unexpected call panics on the nil embedded interface.
type fakeCatalog struct {
	catalog.Catalog

	pkgs    map[string]*registry.Package
	owners  map[string][]int64
	yanked  map[string]bool
	removed map[string]bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		pkgs:    map[string]*registry.Package{},
		owners:  map[string][]int64{},
		yanked:  map[string]bool{},
		removed: map[string]bool{},
	}
}

func (f *fakeCatalog) Begin(ctx context.Context, kind catalog.TxKind) (catalog.Tx, error) {
	return &fakeTx{fakeCatalog: f}, nil
}

func (f *fakeCatalog) GetPackage(ctx context.Context, pkg string) (*registry.Package, error) {
	p, ok := f.pkgs[pkg]
	if !ok {
		return nil, registry.New(registry.ErrNotFound, "GetPackage", "no such package", nil)
	}
	return p, nil
}

func (f *fakeCatalog) IsOwner(ctx context.Context, pkg string, uid int64) (bool, error) {
	for _, id := range f.owners[pkg] {
		if id == uid {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCatalog) GetOwners(ctx context.Context, pkg string) ([]*registry.User, error) {
	var out []*registry.User
	for _, id := range f.owners[pkg] {
		out = append(out, &registry.User{ID: id})
	}
	return out, nil
}

func (f *fakeCatalog) RemoveOwner(ctx context.Context, pkg string, uid int64) error {
	var kept []int64
	for _, id := range f.owners[pkg] {
		if id != uid {
			kept = append(kept, id)
		}
	}
	f.owners[pkg] = kept
	return nil
}

func (f *fakeCatalog) Yank(ctx context.Context, pkg, version string) error {
	f.yanked[pkg+"@"+version] = true
	return nil
}

func (f *fakeCatalog) Unyank(ctx context.Context, pkg, version string) error {
	f.yanked[pkg+"@"+version] = false
	return nil
}

func (f *fakeCatalog) RemoveCrateVersion(ctx context.Context, pkg, version string) error {
	f.removed[pkg+"@"+version] = true
	return nil
}

// fakeTx wraps the same in-memory state: PublishCrateVersion creates the
// package on first publish, and Commit/Rollback are no-ops (mutations are
// already visible through the shared fakeCatalog).
type fakeTx struct {
	*fakeCatalog
}

func (tx *fakeTx) PublishCrateVersion(ctx context.Context, uid int64, upload *registry.UploadMetadata, checksum string) (*registry.PublishWarnings, error) {
	lower := registry.NormalizeName(upload.Name)
	if _, ok := tx.pkgs[lower]; !ok {
		tx.pkgs[lower] = &registry.Package{Name: upload.Name, LowercaseName: lower}
		tx.owners[lower] = []int64{uid}
	}
	return &registry.PublishWarnings{}, nil
}

func (tx *fakeTx) Commit(ctx context.Context) error   { return nil }
func (tx *fakeTx) Rollback(ctx context.Context) error { return nil }

// newTestIndex creates a bare local Index backed by a real git repository
// in t.TempDir(), the same way the pack's git-subprocess tests operate
// directly against a real working copy rather than a mock.
func newTestIndex(t *testing.T) *index.Index {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := t.TempDir()
	idx, err := index.Open(context.Background(), index.Config{
		Root:        root,
		UserName:    "test",
		UserEmail:   "test@example.com",
		DownloadURL: "https://example.com/api/v1/crates",
		APIURL:      "https://example.com",
	}, true)
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	return idx
}

func newTestApplication(t *testing.T) (*Application, *fakeCatalog, *index.Index) {
	t.Helper()
	cat := newFakeCatalog()
	store := fs.New(t.TempDir())
	idx := newTestIndex(t)
	a := New(cat, store, idx, &auth.Plane{}, auth.OAuthConfig{}, nil, nil)
	return a, cat, idx
}

func uploadMeta(name, version string) *registry.UploadMetadata {
	return &registry.UploadMetadata{
		Name: name,
		Vers: version,
	}
}

func TestPublishWritesTarballIndexAndOwner(t *testing.T) {
	a, cat, idx := newTestApplication(t)
	authn := &auth.Authentication{UserID: 1, CanWrite: true}

	tarball := []byte("not a real crate tarball, just bytes")
	warnings, err := a.Publish(context.Background(), authn, uploadMeta("demo-crate", "1.0.0"), tarball)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if warnings == nil {
		t.Fatal("expected non-nil warnings")
	}

	if _, ok := cat.pkgs["demo-crate"]; !ok {
		t.Fatal("expected package to be created")
	}
	if ok, _ := cat.IsOwner(context.Background(), "demo-crate", 1); !ok {
		t.Fatal("expected publisher to be recorded as owner")
	}

	recs, err := idx.ReadRecords("demo-crate")
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].Vers != "1.0.0" {
		t.Fatalf("expected one index record for 1.0.0, got %+v", recs)
	}
	if recs[0].Yanked {
		t.Fatal("freshly published version must not be yanked")
	}
}

func TestPublishRejectsWriteCapabilityMissing(t *testing.T) {
	a, _, _ := newTestApplication(t)
	authn := &auth.Authentication{UserID: 1, CanWrite: false}

	_, err := a.Publish(context.Background(), authn, uploadMeta("demo-crate", "1.0.0"), []byte("x"))
	if registry.KindOf(err) != registry.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestPublishRejectsInvalidName(t *testing.T) {
	a, _, _ := newTestApplication(t)
	authn := &auth.Authentication{UserID: 1, CanWrite: true}

	_, err := a.Publish(context.Background(), authn, uploadMeta("1-bad-start", "1.0.0"), []byte("x"))
	if registry.KindOf(err) != registry.ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestYankAndUnyankFlipIndexFlag(t *testing.T) {
	a, _, idx := newTestApplication(t)
	authn := &auth.Authentication{UserID: 1, CanWrite: true}

	if _, err := a.Publish(context.Background(), authn, uploadMeta("demo-crate", "1.0.0"), []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := a.Yank(context.Background(), authn, "demo-crate", "1.0.0"); err != nil {
		t.Fatalf("Yank: %v", err)
	}
	recs, _ := idx.ReadRecords("demo-crate")
	if !recs[0].Yanked {
		t.Fatal("expected index record to be marked yanked")
	}

	if err := a.Unyank(context.Background(), authn, "demo-crate", "1.0.0"); err != nil {
		t.Fatalf("Unyank: %v", err)
	}
	recs, _ = idx.ReadRecords("demo-crate")
	if recs[0].Yanked {
		t.Fatal("expected index record to be unyanked")
	}
}

func TestYankRejectsNonOwner(t *testing.T) {
	a, _, _ := newTestApplication(t)
	owner := &auth.Authentication{UserID: 1, CanWrite: true}
	if _, err := a.Publish(context.Background(), owner, uploadMeta("demo-crate", "1.0.0"), []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	stranger := &auth.Authentication{UserID: 2, CanWrite: true}
	err := a.Yank(context.Background(), stranger, "demo-crate", "1.0.0")
	if registry.KindOf(err) != registry.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRemoveOwnerRejectsRemovingLastOwner(t *testing.T) {
	a, cat, _ := newTestApplication(t)
	authn := &auth.Authentication{UserID: 1, CanWrite: true}
	if _, err := a.Publish(context.Background(), authn, uploadMeta("demo-crate", "1.0.0"), []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	err := a.RemoveOwner(context.Background(), authn, "demo-crate", 1)
	if registry.KindOf(err) != registry.ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if owners, _ := cat.GetOwners(context.Background(), "demo-crate"); len(owners) != 1 {
		t.Fatalf("expected sole owner to remain, got %+v", owners)
	}
}

func TestRemoveOwnerAllowsRemovalWhenAnotherOwnerRemains(t *testing.T) {
	a, cat, _ := newTestApplication(t)
	authn := &auth.Authentication{UserID: 1, CanWrite: true}
	if _, err := a.Publish(context.Background(), authn, uploadMeta("demo-crate", "1.0.0"), []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	cat.owners["demo-crate"] = append(cat.owners["demo-crate"], 2)

	if err := a.RemoveOwner(context.Background(), authn, "demo-crate", 2); err != nil {
		t.Fatalf("RemoveOwner: %v", err)
	}
	owners, _ := cat.GetOwners(context.Background(), "demo-crate")
	if len(owners) != 1 || owners[0].ID != 1 {
		t.Fatalf("expected only owner 1 to remain, got %+v", owners)
	}
}

func TestLoginFromEmail(t *testing.T) {
	if got := loginFromEmail("alice@example.com"); got != "alice" {
		t.Fatalf("loginFromEmail = %q, want alice", got)
	}
	if got := loginFromEmail("noat"); got != "noat" {
		t.Fatalf("loginFromEmail = %q, want noat", got)
	}
}
