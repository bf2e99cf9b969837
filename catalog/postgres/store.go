// Package postgres implements catalog.Catalog over a PostgreSQL database,
// split across a single-connection write pool and a fanned-out read pool,
// per spec §4.1/§5. Grounded on the teacher's datastore/postgres package
// (connection setup, query-metrics timing, goqu query construction), with
// the read/write pool split, queries/dbtx abstraction and migration set
// built new for the catalog schema.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/remind101/migrate"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/catalog"
	"github.com/cratery/registry/catalog/postgres/migrations"
)

// Store is the Postgres-backed catalog.Catalog.
type Store struct {
	write *pgxpool.Pool
	read  *pgxpool.Pool
	wq    *queries
	rq    *queries
}

var _ catalog.Catalog = (*Store)(nil)

// ReadPoolSize is the default read-pool connection cap, per spec §4.1 ("a
// 16-way read pool").
const ReadPoolSize = 16

// NewStore opens the write and read pools against connString, runs pending
// catalog schema migrations on the write pool, and returns a ready Store.
func NewStore(ctx context.Context, connString, applicationName string) (*Store, error) {
	write, err := connectPool(ctx, connString, applicationName, poolWrite, 1)
	if err != nil {
		return nil, err
	}
	read, err := connectPool(ctx, connString, applicationName, poolRead, ReadPoolSize)
	if err != nil {
		write.Close()
		return nil, err
	}

	db := stdlib.OpenDB(*write.Config().ConnConfig)
	migrator := migrate.NewPostgresMigrator(db)
	migrator.Table = migrations.MigrationTable
	err = migrator.Exec(migrate.Up, migrations.Catalog...)
	db.Close()
	if err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("catalog/postgres: migrate: %w", err)
	}

	return &Store{
		write: write,
		read:  read,
		wq:    newQueries(write, poolWrite),
		rq:    newQueries(read, poolRead),
	}, nil
}

// Close releases both connection pools.
func (s *Store) Close() {
	s.write.Close()
	s.read.Close()
}

// Begin opens a transaction from the pool kind selects, returning a Tx whose
// Queries methods all run against that single connection.
func (s *Store) Begin(ctx context.Context, kind catalog.TxKind) (catalog.Tx, error) {
	pool := s.read
	pk := poolRead
	if kind == catalog.ReadWrite {
		pool = s.write
		pk = poolWrite
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "Begin", "begin transaction failed", err)
	}
	return &txImpl{queries: newQueries(tx, pk), tx: tx}, nil
}

type txImpl struct {
	*queries
	tx pgx.Tx
}

func (t *txImpl) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return registry.New(registry.ErrBackend, "Commit", "commit failed", err)
	}
	return nil
}

func (t *txImpl) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return registry.New(registry.ErrBackend, "Rollback", "rollback failed", err)
	}
	return nil
}

// The forwarding methods below route each catalog.Queries call to the read
// or write pool's bound *queries, since Store (unlike Tx) holds two.

func (s *Store) CheckIsUser(ctx context.Context, email string) (int64, error) {
	return s.rq.CheckIsUser(ctx, email)
}
func (s *Store) CheckIsAdmin(ctx context.Context, uid int64) error {
	return s.rq.CheckIsAdmin(ctx, uid)
}
func (s *Store) GetUserByID(ctx context.Context, uid int64) (*registry.User, error) {
	return s.rq.GetUserByID(ctx, uid)
}
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*registry.User, error) {
	return s.rq.GetUserByLogin(ctx, login)
}
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*registry.User, error) {
	return s.rq.GetUserByEmail(ctx, email)
}
func (s *Store) ListUsers(ctx context.Context) ([]*registry.User, error) {
	return s.rq.ListUsers(ctx)
}
func (s *Store) CreateUser(ctx context.Context, u *registry.User) (*registry.User, error) {
	return s.wq.CreateUser(ctx, u)
}
func (s *Store) UpdateUser(ctx context.Context, requester int64, u *registry.User) error {
	return s.wq.UpdateUser(ctx, requester, u)
}
func (s *Store) DeactivateUser(ctx context.Context, requester, target int64) error {
	return s.wq.DeactivateUser(ctx, requester, target)
}
func (s *Store) ReactivateUser(ctx context.Context, target int64) error {
	return s.wq.ReactivateUser(ctx, target)
}
func (s *Store) DeleteUser(ctx context.Context, requester, target int64) error {
	return s.wq.DeleteUser(ctx, requester, target)
}

func (s *Store) ListTokens(ctx context.Context, uid int64) ([]*registry.UserToken, error) {
	return s.rq.ListTokens(ctx, uid)
}
func (s *Store) CreateToken(ctx context.Context, t *registry.UserToken) (*registry.UserToken, error) {
	return s.wq.CreateToken(ctx, t)
}
func (s *Store) RevokeToken(ctx context.Context, uid, tokenID int64) error {
	return s.wq.RevokeToken(ctx, uid, tokenID)
}
func (s *Store) FindUserTokenCandidates(ctx context.Context, login string) ([]*registry.UserToken, error) {
	return s.rq.FindUserTokenCandidates(ctx, login)
}
func (s *Store) FindGlobalToken(ctx context.Context, name string) (*registry.GlobalToken, error) {
	return s.rq.FindGlobalToken(ctx, name)
}
func (s *Store) TouchToken(ctx context.Context, tokenID int64, isGlobal bool) error {
	return s.wq.TouchToken(ctx, tokenID, isGlobal)
}

func (s *Store) PublishCrateVersion(ctx context.Context, uid int64, upload *registry.UploadMetadata, checksum string) (*registry.PublishWarnings, error) {
	return s.wq.PublishCrateVersion(ctx, uid, upload, checksum)
}
func (s *Store) Yank(ctx context.Context, pkg, version string) error {
	return s.wq.Yank(ctx, pkg, version)
}
func (s *Store) Unyank(ctx context.Context, pkg, version string) error {
	return s.wq.Unyank(ctx, pkg, version)
}
func (s *Store) RemoveCrateVersion(ctx context.Context, pkg, version string) error {
	return s.wq.RemoveCrateVersion(ctx, pkg, version)
}
func (s *Store) GetPackage(ctx context.Context, pkg string) (*registry.Package, error) {
	return s.rq.GetPackage(ctx, pkg)
}
func (s *Store) GetPackageVersion(ctx context.Context, pkg, version string) (*registry.PackageVersion, error) {
	return s.rq.GetPackageVersion(ctx, pkg, version)
}
func (s *Store) ListVersions(ctx context.Context, pkg string) ([]*registry.PackageVersion, error) {
	return s.rq.ListVersions(ctx, pkg)
}
func (s *Store) SetDeprecated(ctx context.Context, pkg string, deprecated bool) error {
	return s.wq.SetDeprecated(ctx, pkg, deprecated)
}
func (s *Store) Search(ctx context.Context, query string, perPage int, includeDeprecated bool) ([]catalog.SearchHit, error) {
	return s.rq.Search(ctx, query, perPage, includeDeprecated)
}

func (s *Store) GetOwners(ctx context.Context, pkg string) ([]*registry.User, error) {
	return s.rq.GetOwners(ctx, pkg)
}
func (s *Store) AddOwner(ctx context.Context, pkg string, uid int64) error {
	return s.wq.AddOwner(ctx, pkg, uid)
}
func (s *Store) RemoveOwner(ctx context.Context, pkg string, uid int64) error {
	return s.wq.RemoveOwner(ctx, pkg, uid)
}
func (s *Store) IsOwner(ctx context.Context, pkg string, uid int64) (bool, error) {
	return s.rq.IsOwner(ctx, pkg, uid)
}

func (s *Store) IncrementDownloadCount(ctx context.Context, pkg, version string) error {
	return s.wq.IncrementDownloadCount(ctx, pkg, version)
}

func (s *Store) GetUndocumentedCrates(ctx context.Context, defaultTarget string) ([]registry.DocGenSpec, error) {
	return s.rq.GetUndocumentedCrates(ctx, defaultTarget)
}
func (s *Store) SetCrateDocumentation(ctx context.Context, pkg, version, target string, attempted, present bool) error {
	return s.wq.SetCrateDocumentation(ctx, pkg, version, target, attempted, present)
}

func (s *Store) CreateDocGenJob(ctx context.Context, job *registry.DocGenJob) (*registry.DocGenJob, error) {
	return s.wq.CreateDocGenJob(ctx, job)
}
func (s *Store) GetNextDocGenJob(ctx context.Context) (*registry.DocGenJob, error) {
	return s.wq.GetNextDocGenJob(ctx)
}
func (s *Store) StartDocGenJob(ctx context.Context, id int64) error {
	return s.wq.StartDocGenJob(ctx, id)
}
func (s *Store) FinishDocGenJob(ctx context.Context, id int64, state registry.DocGenJobState, output string) error {
	return s.wq.FinishDocGenJob(ctx, id, state, output)
}

func (s *Store) GetUnanalyzedCrates(ctx context.Context, staleMinutes int) ([]registry.DepsSpec, error) {
	return s.rq.GetUnanalyzedCrates(ctx, staleMinutes)
}
func (s *Store) SetCrateDepsAnalysis(ctx context.Context, pkg, version string, hasOutdated, hasCVEs bool) error {
	return s.wq.SetCrateDepsAnalysis(ctx, pkg, version, hasOutdated, hasCVEs)
}
