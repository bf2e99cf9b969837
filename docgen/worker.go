// Package docgen implements the DocOrchestrator of spec §4.6: a durable
// job queue backed by the Catalog, an in-memory registry of connected
// documentation-build workers, and the dispatch logic that matches queued
// jobs to capable workers over a duplex protocol.
package docgen

import (
	"errors"
	"time"

	registry "github.com/cratery/registry"
)

// WorkerDescriptor is what a worker announces at handshake time, per spec
// §4.6's worker registry.
type WorkerDescriptor struct {
	ID                 string
	Name               string
	ToolchainStable    string
	ToolchainNightly   string
	ToolchainHost      string
	InstalledTargets   []string
	InstallableTargets []string
	Capabilities       []string
}

// WorkerSelector narrows dispatch to workers satisfying every non-empty
// criterion, per spec §4.6's dispatch rule.
type WorkerSelector struct {
	ToolchainHost            string
	ToolchainInstalledTarget string
	ToolchainAvailableTarget string
	Capabilities             []string
}

// Matches reports whether d satisfies every non-empty criterion of s.
// toolchain_available_target is satisfied by either an installed or an
// installable target, per spec §4.6.
func (s WorkerSelector) Matches(d WorkerDescriptor) bool {
	if s.ToolchainHost != "" && s.ToolchainHost != d.ToolchainHost {
		return false
	}
	if s.ToolchainInstalledTarget != "" && !contains(d.InstalledTargets, s.ToolchainInstalledTarget) {
		return false
	}
	if s.ToolchainAvailableTarget != "" &&
		!contains(d.InstalledTargets, s.ToolchainAvailableTarget) &&
		!contains(d.InstallableTargets, s.ToolchainAvailableTarget) {
		return false
	}
	have := toSet(d.Capabilities)
	for _, c := range s.Capabilities {
		if !have[c] {
			return false
		}
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// SelectorFor derives the WorkerSelector a DocGenJob requires: a native
// build pins the worker's toolchain host, otherwise the job only needs the
// target to be installed-or-installable.
func SelectorFor(job *registry.DocGenJob) WorkerSelector {
	sel := WorkerSelector{Capabilities: job.Capabilities}
	if job.UseNative {
		sel.ToolchainHost = job.Target
		sel.ToolchainInstalledTarget = job.Target
	} else {
		sel.ToolchainAvailableTarget = job.Target
	}
	return sel
}

// JobSpecification is what the orchestrator sends a worker to start work,
// per spec §4.6's "orchestrator sends JobSpecification::DocGen(DocGenJob)".
type JobSpecification struct {
	DocGen *registry.DocGenJob `json:"doc_gen,omitempty"`
}

// JobUpdate is what a worker reports back, one or more times per job.
type JobUpdate struct {
	DocGen *DocGenJobUpdate `json:"doc_gen,omitempty"`
}

// DocGenJobUpdate carries incremental or terminal state for one job.
type DocGenJobUpdate struct {
	JobID      int64                   `json:"job_id"`
	State      registry.DocGenJobState `json:"state"`
	LastUpdate time.Time               `json:"last_update"`
	Log        string                  `json:"log"`
}

// ErrNoMatchingWorker is returned when no currently-connected worker
// matches a selector at all — spec §4.6's fail-fast case, as opposed to
// queuing and waiting for one to appear.
var ErrNoMatchingWorker = errors.New("docgen: no connected worker matches the selector")

// workerState tracks whether a registered worker is free for dispatch.
type workerState int

const (
	stateAvailable workerState = iota
	stateInUse
)

// registeredWorker is the orchestrator's bookkeeping for one connected
// worker: its descriptor, current state, and the channels used to hand it
// work and receive updates.
type registeredWorker struct {
	descriptor WorkerDescriptor
	state      workerState
	jobID      int64

	toWorker   chan JobSpecification
	fromWorker chan JobUpdate
	done       chan struct{} // closed when the connection drops
}
