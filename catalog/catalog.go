// Package catalog defines the transactional contract over the relational
// store described in spec §4.1: a single read-write pool serialized to one
// writer, and a 16-way read pool, both operating inside explicit
// transactions that the caller selects the kind of.
package catalog

import (
	"context"

	registry "github.com/cratery/registry"
)

// TxKind selects which connection pool a transaction is drawn from.
type TxKind int

const (
	// ReadOnly transactions are drawn from the read pool (capacity 16 in
	// the Postgres implementation) and never mutate state.
	ReadOnly TxKind = iota
	// ReadWrite transactions are drawn from the single-connection write
	// pool; writes are serialized across the whole process.
	ReadWrite
)

// Queries is the full set of operations spec §4.1 names, plus the
// supplements listed in SPEC_FULL.md §4.1 (token CRUD, deprecation,
// explicit owner operations). Implementations of Catalog run each call in
// its own transaction; implementations of Tx run every call inside the
// transaction the Tx was Begin'd with, so a caller can compose several
// mutations atomically (the Application façade's Publish method does this).
type Queries interface {
	// Users & auth.
	CheckIsUser(ctx context.Context, email string) (int64, error)
	CheckIsAdmin(ctx context.Context, uid int64) error
	GetUserByID(ctx context.Context, uid int64) (*registry.User, error)
	GetUserByLogin(ctx context.Context, login string) (*registry.User, error)
	GetUserByEmail(ctx context.Context, email string) (*registry.User, error)
	ListUsers(ctx context.Context) ([]*registry.User, error)
	CreateUser(ctx context.Context, u *registry.User) (*registry.User, error)
	UpdateUser(ctx context.Context, requester int64, u *registry.User) error
	DeactivateUser(ctx context.Context, requester, target int64) error
	ReactivateUser(ctx context.Context, target int64) error
	DeleteUser(ctx context.Context, requester, target int64) error

	ListTokens(ctx context.Context, uid int64) ([]*registry.UserToken, error)
	CreateToken(ctx context.Context, t *registry.UserToken) (*registry.UserToken, error)
	RevokeToken(ctx context.Context, uid, tokenID int64) error
	FindUserTokenCandidates(ctx context.Context, login string) ([]*registry.UserToken, error)
	FindGlobalToken(ctx context.Context, name string) (*registry.GlobalToken, error)
	TouchToken(ctx context.Context, tokenID int64, isGlobal bool) error

	// Packages.
	PublishCrateVersion(ctx context.Context, uid int64, upload *registry.UploadMetadata, checksum string) (*registry.PublishWarnings, error)
	Yank(ctx context.Context, pkg, version string) error
	Unyank(ctx context.Context, pkg, version string) error
	RemoveCrateVersion(ctx context.Context, pkg, version string) error
	GetPackage(ctx context.Context, pkg string) (*registry.Package, error)
	GetPackageVersion(ctx context.Context, pkg, version string) (*registry.PackageVersion, error)
	ListVersions(ctx context.Context, pkg string) ([]*registry.PackageVersion, error)
	SetDeprecated(ctx context.Context, pkg string, deprecated bool) error
	Search(ctx context.Context, query string, perPage int, includeDeprecated bool) ([]SearchHit, error)

	GetOwners(ctx context.Context, pkg string) ([]*registry.User, error)
	AddOwner(ctx context.Context, pkg string, uid int64) error
	RemoveOwner(ctx context.Context, pkg string, uid int64) error
	IsOwner(ctx context.Context, pkg string, uid int64) (bool, error)

	IncrementDownloadCount(ctx context.Context, pkg, version string) error

	// Documentation.
	GetUndocumentedCrates(ctx context.Context, defaultTarget string) ([]registry.DocGenSpec, error)
	SetCrateDocumentation(ctx context.Context, pkg, version, target string, attempted, present bool) error

	// DocGenJob queue (spec §4.6's durable queue, backing the DocOrchestrator).
	CreateDocGenJob(ctx context.Context, job *registry.DocGenJob) (*registry.DocGenJob, error)
	GetNextDocGenJob(ctx context.Context) (*registry.DocGenJob, error)
	StartDocGenJob(ctx context.Context, id int64) error
	FinishDocGenJob(ctx context.Context, id int64, state registry.DocGenJobState, output string) error

	// Dependency analysis.
	GetUnanalyzedCrates(ctx context.Context, staleMinutes int) ([]registry.DepsSpec, error)
	SetCrateDepsAnalysis(ctx context.Context, pkg, version string, hasOutdated, hasCVEs bool) error
}

// Catalog is the entry point: every Queries method runs in its own
// internal transaction, and Begin opens one that the caller controls.
type Catalog interface {
	Queries
	Begin(ctx context.Context, kind TxKind) (Tx, error)
}

// Tx is an open transaction. Its Queries methods all run against the
// transaction it was Begin'd with; the caller must Commit or Rollback.
type Tx interface {
	Queries
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SearchHit is one row of a Search result: a package name paired with the
// newest non-yanked version, per spec §4.1.
type SearchHit struct {
	Package     string
	MaxVersion  string
	Description string
	Downloads   int64
}

// MaxPerPage is the clamp spec §4.1/§8 requires: "per_page over 100 is
// clamped to 100".
const MaxPerPage = 100

// ClampPerPage applies the MaxPerPage boundary.
func ClampPerPage(n int) int {
	if n <= 0 {
		return 10
	}
	if n > MaxPerPage {
		return MaxPerPage
	}
	return n
}
