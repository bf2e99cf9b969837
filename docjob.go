package registry

import "time"

// DocGenJobState is the state of a DocGenJob. See spec §3.
type DocGenJobState string

// Defined job states. Success and Failure are terminal.
const (
	DocGenQueued  DocGenJobState = "queued"
	DocGenWorking DocGenJobState = "working"
	DocGenSuccess DocGenJobState = "success"
	DocGenFailure DocGenJobState = "failure"
)

// Terminal reports whether s is a terminal state.
func (s DocGenJobState) Terminal() bool {
	return s == DocGenSuccess || s == DocGenFailure
}

// DocGenTrigger records why a DocGenJob was enqueued, for audit.
type DocGenTrigger string

// Defined trigger kinds.
const (
	TriggerPublish       DocGenTrigger = "publish"
	TriggerRetarget      DocGenTrigger = "retarget"
	TriggerManual        DocGenTrigger = "manual"
	TriggerMissingOnLaunch DocGenTrigger = "missing-on-launch"
)

// DocGenJob is a persistent documentation-build job. See spec §3, §4.6.
type DocGenJob struct {
	ID           int64
	Package      string
	Version      string
	Target       string
	UseNative    bool
	Capabilities []string
	State        DocGenJobState
	QueuedOn     time.Time
	StartedOn    *time.Time
	FinishedOn   *time.Time
	LastUpdate   time.Time
	Trigger      DocGenTrigger
	TriggerUser  *int64
	Output       string
}

// DocGenSpec identifies a (package, version, target) in need of a doc
// build, as returned by Catalog.GetUndocumentedCrates. See spec §4.1.
type DocGenSpec struct {
	Package   string
	Version   string
	Target    string
	UseNative bool
}
