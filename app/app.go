// Package app implements the Application façade of spec §2: one method
// per use case, each opening a Catalog transaction of the right
// read/write kind, authenticating, authorizing, then performing the
// mutation atomically with its collaborators (BlobStore, Index,
// DocOrchestrator).
package app

import (
	"bytes"
	"context"
	"io"

	"github.com/quay/zlog"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/auth"
	"github.com/cratery/registry/blobstore"
	"github.com/cratery/registry/catalog"
	"github.com/cratery/registry/deps"
	"github.com/cratery/registry/docgen"
	"github.com/cratery/registry/index"
)

// Application is the composition root's single façade: every HTTP handler
// calls exactly one of its methods.
type Application struct {
	cat      catalog.Catalog
	blobs    blobstore.Store
	idx      *index.Index
	authn    *auth.Plane
	oauthCfg auth.OAuthConfig
	deps     *deps.Resolver
	docs     *docgen.Orchestrator
}

// New constructs an Application binding every collaborator spec §2 names.
func New(cat catalog.Catalog, blobs blobstore.Store, idx *index.Index, authPlane *auth.Plane, oauthCfg auth.OAuthConfig, resolver *deps.Resolver, orch *docgen.Orchestrator) *Application {
	return &Application{cat: cat, blobs: blobs, idx: idx, authn: authPlane, oauthCfg: oauthCfg, deps: resolver, docs: orch}
}

// Search runs a read-only catalog search.
func (a *Application) Search(ctx context.Context, query string, perPage int, includeDeprecated bool) ([]catalog.SearchHit, error) {
	return a.cat.Search(ctx, query, catalog.ClampPerPage(perPage), includeDeprecated)
}

// GetPackage returns a package's registry-wide configuration.
func (a *Application) GetPackage(ctx context.Context, pkg string) (*registry.Package, error) {
	return a.cat.GetPackage(ctx, registry.NormalizeName(pkg))
}

// ListVersions returns every published version of a package.
func (a *Application) ListVersions(ctx context.Context, pkg string) ([]*registry.PackageVersion, error) {
	return a.cat.ListVersions(ctx, registry.NormalizeName(pkg))
}

// Download increments the download counter and returns an open reader onto
// the crate tarball. Callers must Close the reader.
func (a *Application) Download(ctx context.Context, pkg, version string) (io.ReadCloser, error) {
	lower := registry.NormalizeName(pkg)
	if _, err := a.cat.GetPackageVersion(ctx, lower, version); err != nil {
		return nil, err
	}
	if err := a.cat.IncrementDownloadCount(ctx, lower, version); err != nil {
		zlog.Error(ctx).Err(err).Msg("app: download counter increment failed")
	}
	return a.blobs.Get(ctx, blobstore.CrateKey(lower, version))
}

// owns reports whether uid owns pkg, short-circuiting true for admins per
// spec §4.5's "admin bypasses".
func (a *Application) owns(ctx context.Context, pkg string, authn *auth.Authentication) (bool, error) {
	if authn.CanAdmin {
		return true, nil
	}
	return a.cat.IsOwner(ctx, pkg, authn.UserID)
}

// Publish implements spec §4.5's eight-step sequence atomically.
func (a *Application) Publish(ctx context.Context, authn *auth.Authentication, meta *registry.UploadMetadata, tarball []byte) (*registry.PublishWarnings, error) {
	if !authn.CanWrite {
		return nil, registry.New(registry.ErrForbidden, "Publish", "credential does not carry write capability", nil)
	}
	if err := registry.ValidateName(meta.Name); err != nil {
		return nil, err
	}
	for _, d := range meta.Deps {
		if !registry.DependencyKind(d.Kind).Valid() {
			return nil, registry.New(registry.ErrInvalid, "Publish", "invalid dependency kind "+d.Kind, nil)
		}
	}
	lower := registry.NormalizeName(meta.Name)

	tx, err := a.cat.Begin(ctx, catalog.ReadWrite)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if existing, err := tx.GetPackage(ctx, lower); err == nil {
		ok, err := a.ownsTx(ctx, tx, existing.Name, authn)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, registry.New(registry.ErrForbidden, "Publish", "not an owner of "+existing.Name, nil)
		}
	} else if registry.KindOf(err) != registry.ErrNotFound {
		return nil, err
	}

	checksum := index.Checksum(tarball)

	warnings, err := tx.PublishCrateVersion(ctx, authn.UserID, meta, checksum)
	if err != nil {
		return nil, err
	}

	readme, _ := extractReadme(tarball)
	if err := a.blobs.Put(ctx, blobstore.CrateKey(lower, meta.Vers), bytes.NewReader(tarball), int64(len(tarball))); err != nil {
		return nil, registry.New(registry.ErrBackend, "Publish", "store tarball failed", err)
	}
	metaJSON, err := marshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	if err := a.blobs.Put(ctx, blobstore.MetadataKey(lower, meta.Vers), bytes.NewReader(metaJSON), int64(len(metaJSON))); err != nil {
		return nil, registry.New(registry.ErrBackend, "Publish", "store metadata failed", err)
	}
	if readme != nil {
		if err := a.blobs.Put(ctx, blobstore.ReadmeKey(lower, meta.Vers), bytes.NewReader(readme), int64(len(readme))); err != nil {
			return nil, registry.New(registry.ErrBackend, "Publish", "store readme failed", err)
		}
	}

	record := buildIndexRecord(meta, checksum)
	if err := a.idx.AppendAndCommit(ctx, lower, record); err != nil {
		return nil, err
	}

	pkgRow, err := tx.GetPackage(ctx, lower)
	if err != nil {
		return nil, err
	}
	if a.docs != nil {
		for _, target := range pkgRow.EffectiveTargets() {
			_, err := a.docs.Enqueue(ctx, &registry.DocGenJob{
				Package:      lower,
				Version:      meta.Vers,
				Target:       target,
				UseNative:    pkgRow.RequiresNativeToolchain(target),
				Capabilities: pkgRow.Capabilities,
				Trigger:      registry.TriggerPublish,
				TriggerUser:  &authn.UserID,
			})
			if err != nil {
				zlog.Error(ctx).Err(err).Msg("app: docgen enqueue failed during publish")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, registry.New(registry.ErrBackend, "Publish", "commit failed", err)
	}
	return warnings, nil
}

func (a *Application) ownsTx(ctx context.Context, tx catalog.Tx, pkg string, authn *auth.Authentication) (bool, error) {
	if authn.CanAdmin {
		return true, nil
	}
	return tx.IsOwner(ctx, pkg, authn.UserID)
}

// Yank marks a version yanked; requires ownership or admin.
func (a *Application) Yank(ctx context.Context, authn *auth.Authentication, pkg, version string) error {
	lower := registry.NormalizeName(pkg)
	if ok, err := a.owns(ctx, lower, authn); err != nil {
		return err
	} else if !ok {
		return registry.New(registry.ErrForbidden, "Yank", "not an owner", nil)
	}
	if err := a.cat.Yank(ctx, lower, version); err != nil {
		return err
	}
	return a.idx.SetYanked(ctx, lower, version, true)
}

// Unyank reverses Yank.
func (a *Application) Unyank(ctx context.Context, authn *auth.Authentication, pkg, version string) error {
	lower := registry.NormalizeName(pkg)
	if ok, err := a.owns(ctx, lower, authn); err != nil {
		return err
	} else if !ok {
		return registry.New(registry.ErrForbidden, "Unyank", "not an owner", nil)
	}
	if err := a.cat.Unyank(ctx, lower, version); err != nil {
		return err
	}
	return a.idx.SetYanked(ctx, lower, version, false)
}

// RemoveCrateVersion physically deletes a version; requires Package.CanRemove.
func (a *Application) RemoveCrateVersion(ctx context.Context, authn *auth.Authentication, pkg, version string) error {
	lower := registry.NormalizeName(pkg)
	p, err := a.cat.GetPackage(ctx, lower)
	if err != nil {
		return err
	}
	if !p.CanRemove {
		return registry.New(registry.ErrForbidden, "RemoveCrateVersion", "physical removal is disabled for "+p.Name, nil)
	}
	if ok, err := a.owns(ctx, lower, authn); err != nil {
		return err
	} else if !ok {
		return registry.New(registry.ErrForbidden, "RemoveCrateVersion", "not an owner", nil)
	}
	if err := a.cat.RemoveCrateVersion(ctx, lower, version); err != nil {
		return err
	}
	return a.idx.RewriteWithout(ctx, lower, version)
}

// GetOwners lists a package's owners.
func (a *Application) GetOwners(ctx context.Context, pkg string) ([]*registry.User, error) {
	return a.cat.GetOwners(ctx, registry.NormalizeName(pkg))
}

// AddOwner adds uid as an owner of pkg; requires existing ownership or admin.
func (a *Application) AddOwner(ctx context.Context, authn *auth.Authentication, pkg string, uid int64) error {
	lower := registry.NormalizeName(pkg)
	if ok, err := a.owns(ctx, lower, authn); err != nil {
		return err
	} else if !ok {
		return registry.New(registry.ErrForbidden, "AddOwner", "not an owner", nil)
	}
	return a.cat.AddOwner(ctx, lower, uid)
}

// RemoveOwner removes uid as an owner of pkg, enforcing spec §3's "at least
// one owner must remain" invariant by reading the current owner set and
// the removal inside the same read-write transaction.
func (a *Application) RemoveOwner(ctx context.Context, authn *auth.Authentication, pkg string, uid int64) error {
	lower := registry.NormalizeName(pkg)
	if ok, err := a.owns(ctx, lower, authn); err != nil {
		return err
	} else if !ok {
		return registry.New(registry.ErrForbidden, "RemoveOwner", "not an owner", nil)
	}

	tx, err := a.cat.Begin(ctx, catalog.ReadWrite)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	owners, err := tx.GetOwners(ctx, lower)
	if err != nil {
		return err
	}
	if len(owners) <= 1 {
		return registry.New(registry.ErrInvalid, "RemoveOwner", "cannot remove all owners", nil)
	}
	if err := tx.RemoveOwner(ctx, lower, uid); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetDeprecated toggles a package's deprecation flag; admin only.
func (a *Application) SetDeprecated(ctx context.Context, authn *auth.Authentication, pkg string, deprecated bool) error {
	if !authn.CanAdmin {
		return registry.New(registry.ErrForbidden, "SetDeprecated", "admin required", nil)
	}
	return a.cat.SetDeprecated(ctx, registry.NormalizeName(pkg), deprecated)
}
