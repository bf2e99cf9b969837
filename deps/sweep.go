package deps

import (
	"context"
	"time"

	"github.com/quay/zlog"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/catalog"
)

// sweepInterval is how often Sweeper.Run wakes to look for stale crates,
// independent of the per-crate staleness window a Resolver is configured
// with.
const sweepInterval = time.Minute

// Notifier is the minimal surface Sweeper needs from email.Sender, kept
// as an interface here so deps does not import the email package for a
// concern spec §4.7 calls "out of core scope".
type Notifier interface {
	NotifyDependencyHealth(ctx context.Context, recipients []string, pkg, version string, hasOutdated, hasCVEs bool)
}

// Sweeper runs the periodic background loop spec §4.7 describes: find
// crates whose analysis is stale, re-resolve their dependencies, persist
// the result, and notify owners on a first transition into a bad state.
type Sweeper struct {
	cat          catalog.Catalog
	resolver     *Resolver
	notifier     Notifier
	staleMinutes int
}

// NewSweeper constructs a Sweeper. notifier may be nil to disable
// notifications entirely.
func NewSweeper(cat catalog.Catalog, resolver *Resolver, notifier Notifier, staleMinutes int) *Sweeper {
	return &Sweeper{cat: cat, resolver: resolver, notifier: notifier, staleMinutes: staleMinutes}
}

// Run blocks, sweeping on sweepInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	specs, err := s.cat.GetUnanalyzedCrates(ctx, s.staleMinutes)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("deps: sweep failed to list unanalyzed crates")
		return
	}
	for _, spec := range specs {
		s.analyzeOne(ctx, spec)
	}
}

func (s *Sweeper) analyzeOne(ctx context.Context, spec registry.DepsSpec) {
	before, err := s.cat.GetPackageVersion(ctx, spec.Package, spec.Version)
	if err != nil {
		zlog.Error(ctx).Err(err).Str("package", spec.Package).Msg("deps: sweep failed to load version")
		return
	}
	wasBad := before.DepsHasOutdated || before.DepsHasCVEs

	result, err := s.resolver.Resolve(ctx, spec.Package, spec.Version, nil, nil)
	if err != nil {
		zlog.Error(ctx).Err(err).Str("package", spec.Package).Str("version", spec.Version).Msg("deps: sweep resolve failed")
		return
	}
	if err := s.cat.SetCrateDepsAnalysis(ctx, spec.Package, spec.Version, result.HasOutdated, result.HasCVEs); err != nil {
		zlog.Error(ctx).Err(err).Str("package", spec.Package).Msg("deps: sweep failed to persist analysis")
		return
	}

	nowBad := result.HasOutdated || result.HasCVEs
	if nowBad && !wasBad && s.notifier != nil {
		owners, err := s.cat.GetOwners(ctx, spec.Package)
		if err != nil {
			zlog.Warn(ctx).Err(err).Str("package", spec.Package).Msg("deps: sweep failed to load owners for notification")
			return
		}
		recipients := make([]string, 0, len(owners))
		for _, o := range owners {
			recipients = append(recipients, o.Email)
		}
		s.notifier.NotifyDependencyHealth(ctx, recipients, spec.Package, spec.Version, result.HasOutdated, result.HasCVEs)
	}
}
