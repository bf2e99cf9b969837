package deps

import (
	"context"
	"os/exec"
	"testing"
	"time"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/catalog"
	"github.com/cratery/registry/index"
)

// fakeSweepCatalog is a minimal catalog.Catalog fake covering only the
// methods Sweeper.analyzeOne calls, following the same partial-fake idiom
// the docgen package's tests use (embed the nil interface, override what's
// exercised).
type fakeSweepCatalog struct {
	catalog.Catalog

	version *registry.PackageVersion
	owners  []*registry.User

	analyzedOutdated bool
	analyzedCVEs     bool
	analyzeCalled    bool
}

func (f *fakeSweepCatalog) GetUnanalyzedCrates(ctx context.Context, staleMinutes int) ([]registry.DepsSpec, error) {
	return []registry.DepsSpec{{Package: "demo-crate", Version: "1.0.0"}}, nil
}

func (f *fakeSweepCatalog) GetPackageVersion(ctx context.Context, pkg, version string) (*registry.PackageVersion, error) {
	return f.version, nil
}

func (f *fakeSweepCatalog) GetOwners(ctx context.Context, pkg string) ([]*registry.User, error) {
	return f.owners, nil
}

func (f *fakeSweepCatalog) SetCrateDepsAnalysis(ctx context.Context, pkg, version string, hasOutdated, hasCVEs bool) error {
	f.analyzeCalled = true
	f.analyzedOutdated, f.analyzedCVEs = hasOutdated, hasCVEs
	return nil
}

type fakeNotifier struct {
	called bool
}

func (n *fakeNotifier) NotifyDependencyHealth(ctx context.Context, recipients []string, pkg, version string, hasOutdated, hasCVEs bool) {
	n.called = true
}

// newSweepTestIndex writes one dependency-free IndexRecord for
// demo-crate@1.0.0 into a real local git index, grounded the same way
// app_test.go's newTestIndex is.
func newSweepTestIndex(t *testing.T) *index.Index {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := t.TempDir()
	idx, err := index.Open(context.Background(), index.Config{
		Root:      root,
		UserName:  "test",
		UserEmail: "test@example.com",
	}, true)
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	rec := registry.IndexRecord{Name: "demo-crate", Vers: "1.0.0", Cksum: "abc"}
	if err := idx.AppendAndCommit(context.Background(), "demo-crate", rec); err != nil {
		t.Fatalf("AppendAndCommit: %v", err)
	}
	return idx
}

func TestSweepAnalyzeOneWithNoDepsNeverNotifies(t *testing.T) {
	idx := newSweepTestIndex(t)
	resolver := New(idx, nil, nil, time.Hour)
	cat := &fakeSweepCatalog{
		version: &registry.PackageVersion{Package: "demo-crate", Version: "1.0.0"},
		owners:  []*registry.User{{ID: 1, Email: "owner@example.com"}},
	}
	notifier := &fakeNotifier{}
	sweeper := NewSweeper(cat, resolver, notifier, 60)

	sweeper.analyzeOne(context.Background(), registry.DepsSpec{Package: "demo-crate", Version: "1.0.0"})

	if !cat.analyzeCalled {
		t.Fatal("expected SetCrateDepsAnalysis to be called")
	}
	if cat.analyzedOutdated || cat.analyzedCVEs {
		t.Fatalf("expected clean analysis for a crate with no deps, got outdated=%v cves=%v", cat.analyzedOutdated, cat.analyzedCVEs)
	}
	if notifier.called {
		t.Fatal("expected no notification when health never goes bad")
	}
}

func TestSweepAnalyzeOneNotifiesOnFirstBadTransition(t *testing.T) {
	idx := newSweepTestIndex(t)
	// Append a second record carrying a dependency we can never resolve,
	// which Resolve reports as outdated (spec §4.7's
	// unresolvable-dependency fallback).
	missing := "not-a-real-registry"
	dep := registry.IndexDependency{Name: "nonexistent-dep", Req: "^1", Kind: "normal", Registry: &missing}
	rec := registry.IndexRecord{Name: "demo-crate", Vers: "1.1.0", Cksum: "def", Deps: []registry.IndexDependency{dep}}
	if err := idx.AppendAndCommit(context.Background(), "demo-crate", rec); err != nil {
		t.Fatalf("AppendAndCommit: %v", err)
	}

	resolver := New(idx, map[string]ExternalRegistry{}, nil, time.Hour)
	cat := &fakeSweepCatalog{
		version: &registry.PackageVersion{Package: "demo-crate", Version: "1.1.0"},
		owners:  []*registry.User{{ID: 1, Email: "owner@example.com"}},
	}
	notifier := &fakeNotifier{}
	sweeper := NewSweeper(cat, resolver, notifier, 60)

	sweeper.analyzeOne(context.Background(), registry.DepsSpec{Package: "demo-crate", Version: "1.1.0"})

	if !cat.analyzedOutdated {
		t.Fatal("expected an unresolvable external dependency to be marked outdated")
	}
	if !notifier.called {
		t.Fatal("expected a notification on the first transition into a bad state")
	}
}
