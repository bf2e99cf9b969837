package docgen

import (
	"context"
	"sync"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/catalog"
)

// recoverMissingDocsConcurrency bounds how many recovery enqueues run at
// once against the catalog on startup, mirroring the teacher's indexer
// controller capping concurrent store calls with errgroup.SetLimit.
const recoverMissingDocsConcurrency = 20

// pollInterval is the orchestrator's queue poll cadence, per spec §4.6
// ("orchestrator polls for a next Queued job every 10 seconds").
const pollInterval = 10 * time.Second

// ExternalRegistryConfig is the authentication configuration the
// orchestrator hands back to a worker at handshake time, so the worker can
// authenticate against external registries while running cargo rustdoc.
type ExternalRegistryConfig struct {
	Name     string
	IndexURL string
	Login    string
	Token    string
}

// Orchestrator implements spec §4.6's DocOrchestrator: it owns the
// in-memory worker registry and runs the dispatch loop against the
// Catalog's durable DocGenJob queue.
type Orchestrator struct {
	cat       catalog.Catalog
	externals []ExternalRegistryConfig

	mu      sync.Mutex
	workers map[string]*registeredWorker

	subMu       sync.Mutex
	subscribers []chan DocGenJobUpdate

	// poke wakes Run's dispatch loop immediately instead of waiting for the
	// next pollInterval tick, per spec §4.6's "woken when any worker becomes
	// available" — see release and RegisterWorker.
	poke chan struct{}
}

// New constructs an Orchestrator bound to cat. externals is handed to every
// worker at handshake, per spec §4.6's "orchestrator replies with the
// external-registry configuration the worker needs".
func New(cat catalog.Catalog, externals []ExternalRegistryConfig) *Orchestrator {
	return &Orchestrator{
		cat:       cat,
		externals: externals,
		workers:   make(map[string]*registeredWorker),
		poke:      make(chan struct{}, 1),
	}
}

// wake signals Run to try dispatchNext immediately rather than waiting for
// the next ticker tick. The channel is buffered 1 and the send is
// non-blocking, so repeated wake-ups coalesce into a single pending poke.
func (o *Orchestrator) wake() {
	select {
	case o.poke <- struct{}{}:
	default:
	}
}

// Subscribe registers a channel that receives every relayed DocGenJobUpdate.
// The caller must keep draining it; Orchestrator never blocks delivery for
// more than a short send attempt.
func (o *Orchestrator) Subscribe() <-chan DocGenJobUpdate {
	ch := make(chan DocGenJobUpdate, 16)
	o.subMu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.subMu.Unlock()
	return ch
}

func (o *Orchestrator) publish(u DocGenJobUpdate) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

// RegisterWorker adds a newly-handshaken worker to the registry as
// Available, returning the channels used to drive it and a function that
// removes it (called when the connection drops).
func (o *Orchestrator) RegisterWorker(d WorkerDescriptor) (toWorker <-chan JobSpecification, fromWorker chan<- JobUpdate, remove func()) {
	w := &registeredWorker{
		descriptor: d,
		state:      stateAvailable,
		toWorker:   make(chan JobSpecification, 1),
		fromWorker: make(chan JobUpdate, 8),
		done:       make(chan struct{}),
	}
	o.mu.Lock()
	o.workers[d.ID] = w
	o.mu.Unlock()
	o.wake()

	return w.toWorker, w.fromWorker, func() {
		o.mu.Lock()
		delete(o.workers, d.ID)
		close(w.done)
		o.mu.Unlock()
	}
}

// checkout finds and claims an Available worker matching sel, or reports
// ErrNoMatchingWorker when no connected worker matches at all (spec §4.6's
// fail-fast case) or ok=false when matching workers exist but are all busy.
func (o *Orchestrator) checkout(sel WorkerSelector, jobID int64) (w *registeredWorker, ok bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	anyMatch := false
	for _, cand := range o.workers {
		if !sel.Matches(cand.descriptor) {
			continue
		}
		anyMatch = true
		if cand.state == stateAvailable {
			cand.state = stateInUse
			cand.jobID = jobID
			return cand, true, nil
		}
	}
	if !anyMatch {
		return nil, false, ErrNoMatchingWorker
	}
	return nil, false, nil
}

func (o *Orchestrator) release(w *registeredWorker) {
	o.mu.Lock()
	w.state = stateAvailable
	w.jobID = 0
	o.mu.Unlock()
	o.wake()
}

// ExternalRegistries returns the configuration handed to every worker at
// handshake.
func (o *Orchestrator) ExternalRegistries() []ExternalRegistryConfig { return o.externals }

// Run drives the dispatch loop until ctx is canceled, per spec §4.6's
// polling lifecycle. It should be started as one long-lived task.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.dispatchNext(ctx)
		case <-o.poke:
			o.dispatchNext(ctx)
		}
	}
}

// dispatchNext picks at most one Queued job and, if a worker is available
// for it, hands it off. It is safe to call concurrently with itself only
// via the single Run loop; RecoverMissingDocs and manual enqueue calls do
// not contend with it beyond the Catalog's own concurrency control.
func (o *Orchestrator) dispatchNext(ctx context.Context) {
	job, err := o.cat.GetNextDocGenJob(ctx)
	if err != nil {
		if registry.KindOf(err) != registry.ErrNotFound {
			zlog.Error(ctx).Err(err).Msg("docgen: get next job failed")
		}
		return
	}

	sel := SelectorFor(job)
	w, ok, err := o.checkout(sel, job.ID)
	if err != nil {
		zlog.Error(ctx).Int64("job", job.ID).Msg("docgen: no connected worker can ever satisfy this job")
		if ferr := o.cat.FinishDocGenJob(ctx, job.ID, registry.DocGenFailure, "no matching worker connected"); ferr != nil {
			zlog.Error(ctx).Err(ferr).Msg("docgen: failed to mark job as failed")
		}
		return
	}
	if !ok {
		return // matching workers exist but are all busy; try again next tick
	}

	if err := o.cat.StartDocGenJob(ctx, job.ID); err != nil {
		zlog.Error(ctx).Err(err).Int64("job", job.ID).Msg("docgen: failed to mark job Working")
		o.release(w)
		return
	}

	go o.run(ctx, w, job)
}

// run drives one dispatched job to completion: send the spec, relay every
// update, persist the terminal state, and return the worker to Available.
func (o *Orchestrator) run(ctx context.Context, w *registeredWorker, job *registry.DocGenJob) {
	defer o.release(w)

	select {
	case w.toWorker <- JobSpecification{DocGen: job}:
	case <-w.done:
		o.finishDisconnected(ctx, job)
		return
	case <-ctx.Done():
		return
	}

	var log string
	for {
		select {
		case upd, open := <-w.fromWorker:
			if !open || upd.DocGen == nil {
				o.finishDisconnected(ctx, job)
				return
			}
			o.publish(*upd.DocGen)
			log = upd.DocGen.Log
			if upd.DocGen.State.Terminal() {
				o.finish(ctx, job, upd.DocGen.State, log)
				return
			}
		case <-w.done:
			o.finishDisconnected(ctx, job)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) finishDisconnected(ctx context.Context, job *registry.DocGenJob) {
	o.finish(ctx, job, registry.DocGenFailure, "worker disconnected")
}

func (o *Orchestrator) finish(ctx context.Context, job *registry.DocGenJob, state registry.DocGenJobState, log string) {
	if err := o.cat.FinishDocGenJob(ctx, job.ID, state, log); err != nil {
		zlog.Error(ctx).Err(err).Int64("job", job.ID).Msg("docgen: failed to persist terminal job state")
	}
	if err := o.cat.SetCrateDocumentation(ctx, job.Package, job.Version, job.Target, true, state == registry.DocGenSuccess); err != nil {
		zlog.Error(ctx).Err(err).Int64("job", job.ID).Msg("docgen: failed to update PackageVersionDoc")
	}
}

// Enqueue creates (or, per spec §4.6, reuses the existing queued) job for
// one (package, version, target).
func (o *Orchestrator) Enqueue(ctx context.Context, job *registry.DocGenJob) (*registry.DocGenJob, error) {
	created, err := o.cat.CreateDocGenJob(ctx, job)
	if err == nil {
		o.wake()
	}
	return created, err
}

// RecoverMissingDocs implements spec §4.6's startup recovery: every
// (package, version, target) lacking a present-or-attempted doc row is
// enqueued with trigger MissingOnLaunch.
func (o *Orchestrator) RecoverMissingDocs(ctx context.Context, defaultTarget string) error {
	specs, err := o.cat.GetUndocumentedCrates(ctx, defaultTarget)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recoverMissingDocsConcurrency)
	for _, s := range specs {
		s := s
		g.Go(func() error {
			_, err := o.Enqueue(gctx, &registry.DocGenJob{
				Package:   s.Package,
				Version:   s.Version,
				Target:    s.Target,
				UseNative: s.UseNative,
				Trigger:   registry.TriggerMissingOnLaunch,
			})
			if err != nil {
				zlog.Error(ctx).Err(err).Str("package", s.Package).Str("version", s.Version).Msg("docgen: missing-docs recovery enqueue failed")
			}
			return nil
		})
	}
	return g.Wait()
}
