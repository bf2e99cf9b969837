package docgen

import (
	"context"
	"sync"
	"testing"
	"time"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/catalog"
)

// fakeCatalog is a minimal partial fake: embedding the nil Catalog interface
// means any method this test doesn't override panics if called, which is
// exactly what should happen if the orchestrator starts exercising an
// operation these tests don't expect.
type fakeCatalog struct {
	catalog.Catalog

	mu     sync.Mutex
	jobs   map[int64]*registry.DocGenJob
	nextID int64
	docs   []struct{ pkg, version, target string; attempted, present bool }
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{jobs: make(map[int64]*registry.DocGenJob)}
}

func (f *fakeCatalog) CreateDocGenJob(ctx context.Context, job *registry.DocGenJob) (*registry.DocGenJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Package == job.Package && j.Version == job.Version && j.Target == job.Target && j.State == registry.DocGenQueued {
			return j, nil
		}
	}
	f.nextID++
	job.ID = f.nextID
	job.State = registry.DocGenQueued
	job.QueuedOn = time.Now()
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeCatalog) GetNextDocGenJob(ctx context.Context) (*registry.DocGenJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *registry.DocGenJob
	for _, j := range f.jobs {
		if j.State != registry.DocGenQueued {
			continue
		}
		if best == nil || j.ID < best.ID {
			best = j
		}
	}
	if best == nil {
		return nil, registry.New(registry.ErrNotFound, "GetNextDocGenJob", "empty", nil)
	}
	return best, nil
}

func (f *fakeCatalog) StartDocGenJob(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return registry.New(registry.ErrNotFound, "StartDocGenJob", "no such job", nil)
	}
	j.State = registry.DocGenWorking
	return nil
}

func (f *fakeCatalog) FinishDocGenJob(ctx context.Context, id int64, state registry.DocGenJobState, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return registry.New(registry.ErrNotFound, "FinishDocGenJob", "no such job", nil)
	}
	j.State = state
	j.Output = output
	return nil
}

func (f *fakeCatalog) SetCrateDocumentation(ctx context.Context, pkg, version, target string, attempted, present bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, struct {
		pkg, version, target       string
		attempted, present bool
	}{pkg, version, target, attempted, present})
	return nil
}

func (f *fakeCatalog) GetUndocumentedCrates(ctx context.Context, defaultTarget string) ([]registry.DocGenSpec, error) {
	return nil, nil
}

func TestSelectorForNativeVsCross(t *testing.T) {
	native := SelectorFor(&registry.DocGenJob{Target: "x86_64-apple-darwin", UseNative: true})
	if native.ToolchainHost != "x86_64-apple-darwin" || native.ToolchainInstalledTarget != "x86_64-apple-darwin" {
		t.Errorf("native job selector = %+v", native)
	}

	cross := SelectorFor(&registry.DocGenJob{Target: "wasm32-unknown-unknown"})
	if cross.ToolchainHost != "" || cross.ToolchainAvailableTarget != "wasm32-unknown-unknown" {
		t.Errorf("cross job selector = %+v", cross)
	}
}

func TestSelectorMatches(t *testing.T) {
	d := WorkerDescriptor{
		ToolchainHost:      "x86_64-unknown-linux-gnu",
		InstalledTargets:   []string{"x86_64-unknown-linux-gnu"},
		InstallableTargets: []string{"wasm32-unknown-unknown"},
		Capabilities:       []string{"docker"},
	}
	cases := []struct {
		name string
		sel  WorkerSelector
		want bool
	}{
		{"available target via installable", WorkerSelector{ToolchainAvailableTarget: "wasm32-unknown-unknown"}, true},
		{"available target via installed", WorkerSelector{ToolchainAvailableTarget: "x86_64-unknown-linux-gnu"}, true},
		{"unavailable target", WorkerSelector{ToolchainAvailableTarget: "aarch64-apple-darwin"}, false},
		{"missing capability", WorkerSelector{Capabilities: []string{"gpu"}}, false},
		{"host mismatch", WorkerSelector{ToolchainHost: "aarch64-apple-darwin"}, false},
	}
	for _, c := range cases {
		if got := c.sel.Matches(d); got != c.want {
			t.Errorf("%s: Matches() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDispatchNextRunsJobToSuccess(t *testing.T) {
	cat := newFakeCatalog()
	orch := New(cat, nil)

	toWorker, fromWorker, remove := orch.RegisterWorker(WorkerDescriptor{
		ID:               "w1",
		InstalledTargets: []string{registry.DefaultTarget},
	})
	defer remove()

	job, err := orch.Enqueue(t.Context(), &registry.DocGenJob{
		Package: "leftpad", Version: "1.0.0", Target: registry.DefaultTarget,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	go orch.dispatchNext(ctx)

	select {
	case spec := <-toWorker:
		if spec.DocGen.ID != job.ID {
			t.Fatalf("dispatched wrong job: %+v", spec.DocGen)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for dispatch")
	}

	fromWorker <- JobUpdate{DocGen: &DocGenJobUpdate{JobID: job.ID, State: registry.DocGenSuccess, Log: "ok"}}

	deadline := time.After(time.Second)
	for {
		cat.mu.Lock()
		state := cat.jobs[job.ID].State
		cat.mu.Unlock()
		if state == registry.DocGenSuccess {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never reached Success, last state %v", state)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if len(cat.docs) != 1 || !cat.docs[0].present {
		t.Fatalf("expected SetCrateDocumentation(present=true), got %+v", cat.docs)
	}
}

func TestDispatchNextFailsFastWithNoMatchingWorker(t *testing.T) {
	cat := newFakeCatalog()
	orch := New(cat, nil)

	if _, err := orch.Enqueue(t.Context(), &registry.DocGenJob{
		Package: "leftpad", Version: "1.0.0", Target: "some-exotic-target", UseNative: true,
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	orch.dispatchNext(t.Context())

	cat.mu.Lock()
	defer cat.mu.Unlock()
	for _, j := range cat.jobs {
		if j.State != registry.DocGenFailure {
			t.Fatalf("expected job to fail fast, got state %v", j.State)
		}
	}
}
