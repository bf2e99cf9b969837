package postgres

import (
	"context"

	"github.com/doug-martin/goqu/v8"
	"github.com/jackc/pgx/v5"

	registry "github.com/cratery/registry"
)

func scanPackage(row pgx.Row) (*registry.Package, error) {
	p := &registry.Package{}
	var targetsCSV, nativeCSV, capsCSV string
	if err := row.Scan(&p.Name, &p.LowercaseName, &targetsCSV, &nativeCSV, &capsCSV, &p.IsDeprecated, &p.CanRemove); err != nil {
		return nil, err
	}
	p.Targets = splitCSVPkg(targetsCSV)
	p.NativeTargets = splitCSVPkg(nativeCSV)
	p.Capabilities = splitCSVPkg(capsCSV)
	return p, nil
}

// splitCSVPkg mirrors registry.splitCSV, which is unexported; catalog/postgres
// is outside that package so it reimplements the same trivial split here.
func splitCSVPkg(csv string) []string {
	if csv == "" {
		return nil
	}
	out := make([]string, 0, 4)
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}

var packageColumns = []any{"name", "lowercase_name", "targets_csv", "native_targets_csv", "capabilities_csv", "is_deprecated", "can_remove"}

func (q *queries) GetPackage(ctx context.Context, pkg string) (p *registry.Package, err error) {
	m := startQuery("GetPackage", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("packages").Select(packageColumns...).
		Where(goqu.Ex{"lowercase_name": registry.NormalizeName(pkg)}).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	p, err = scanPackage(q.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, registry.New(registry.ErrNotFound, "GetPackage", "no such crate", err)
		}
		return nil, registry.New(registry.ErrBackend, "GetPackage", "query failed", err)
	}
	return p, nil
}

func scanPackageVersion(row pgx.Row) (*registry.PackageVersion, error) {
	v := &registry.PackageVersion{}
	var seriesBytes []byte
	if err := row.Scan(&v.ID, &v.Package, &v.Version, &v.Description, &v.UploadedAt, &v.UploadedBy,
		&v.Yanked, &v.DownloadCount, &seriesBytes, &v.DepsLastCheck, &v.DepsHasOutdated, &v.DepsHasCVEs); err != nil {
		return nil, err
	}
	v.DownloadsSeries = registry.DownloadsSeriesFromBytes(seriesBytes)
	return v, nil
}

var packageVersionColumns = []any{"id", "package", "version", "description", "uploaded_at", "uploaded_by",
	"yanked", "download_count", "downloads_series", "deps_last_check", "deps_has_outdated", "deps_has_cves"}

func (q *queries) GetPackageVersion(ctx context.Context, pkg, version string) (v *registry.PackageVersion, err error) {
	m := startQuery("GetPackageVersion", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("package_versions").Select(packageVersionColumns...).
		Where(goqu.Ex{"package": pkg, "version": version}).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	v, err = scanPackageVersion(q.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, registry.New(registry.ErrNotFound, "GetPackageVersion", "no such version", err)
		}
		return nil, registry.New(registry.ErrBackend, "GetPackageVersion", "query failed", err)
	}
	return v, nil
}

func (q *queries) ListVersions(ctx context.Context, pkg string) (out []*registry.PackageVersion, err error) {
	m := startQuery("ListVersions", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("package_versions").Select(packageVersionColumns...).
		Where(goqu.Ex{"package": pkg}).Order(goqu.C("uploaded_at").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "ListVersions", "query failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanPackageVersion(rows)
		if err != nil {
			return nil, registry.New(registry.ErrBackend, "ListVersions", "scan failed", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// PublishCrateVersion implements spec §4.1's publish uniqueness algorithm:
// SELECT by (name, version); if present, InvalidRequest (Cargo never allows
// republishing a version, only yanking it). SELECT the package by
// lowercase_name; if present under a different case-preserved name,
// InvalidRequest ("a package named X already exists"); if present under the
// same name, reuse the row. If absent, INSERT the Package and add the
// publisher as its sole owner. See spec §3, §4.1, §4.5.
func (q *queries) PublishCrateVersion(ctx context.Context, uid int64, upload *registry.UploadMetadata, checksum string) (warnings *registry.PublishWarnings, err error) {
	m := startQuery("PublishCrateVersion", q.pool)
	defer m.done(&err)

	lower := registry.NormalizeName(upload.Name)

	verSQL, verArgs, err := psql.From("package_versions").Select(goqu.L("1")).
		Where(goqu.Ex{"package": upload.Name, "version": upload.Vers}).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var one int
	switch scanErr := q.db.QueryRow(ctx, verSQL, verArgs...).Scan(&one); scanErr {
	case nil:
		return nil, registry.New(registry.ErrInvalid, "PublishCrateVersion", "crate version "+upload.Name+" "+upload.Vers+" is already published", nil)
	case pgx.ErrNoRows:
	default:
		return nil, registry.New(registry.ErrBackend, "PublishCrateVersion", "version lookup failed", scanErr)
	}

	pkgSQL, pkgArgs, err := psql.From("packages").Select("name").
		Where(goqu.Ex{"lowercase_name": lower}).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var existingName string
	switch scanErr := q.db.QueryRow(ctx, pkgSQL, pkgArgs...).Scan(&existingName); scanErr {
	case nil:
		if existingName != upload.Name {
			return nil, registry.New(registry.ErrInvalid, "PublishCrateVersion", "a package named "+existingName+" already exists", nil)
		}
	case pgx.ErrNoRows:
		insertPkg, args, err := psql.Insert("packages").Rows(goqu.Record{
			"name":           upload.Name,
			"lowercase_name": lower,
		}).Prepared(true).ToSQL()
		if err != nil {
			return nil, err
		}
		if _, err = q.db.Exec(ctx, insertPkg, args...); err != nil {
			return nil, registry.New(registry.ErrBackend, "PublishCrateVersion", "insert package failed", err)
		}

		ownerSQL, ownerArgs, err := psql.Insert("package_owners").Rows(goqu.Record{
			"package": upload.Name,
			"user_id": uid,
		}).Prepared(true).ToSQL()
		if err != nil {
			return nil, err
		}
		if _, err = q.db.Exec(ctx, ownerSQL, ownerArgs...); err != nil {
			return nil, registry.New(registry.ErrBackend, "PublishCrateVersion", "owner insert failed", err)
		}
	default:
		return nil, registry.New(registry.ErrBackend, "PublishCrateVersion", "package lookup failed", scanErr)
	}

	insertVer, insArgs, err := psql.Insert("package_versions").Rows(goqu.Record{
		"package":     upload.Name,
		"version":     upload.Vers,
		"description": upload.Description,
		"uploaded_by": uid,
	}).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	if _, err = q.db.Exec(ctx, insertVer, insArgs...); err != nil {
		return nil, registry.New(registry.ErrInvalid, "PublishCrateVersion", "version already published", err)
	}

	return &registry.PublishWarnings{}, nil
}

func (q *queries) Yank(ctx context.Context, pkg, version string) (err error) {
	m := startQuery("Yank", q.pool)
	defer m.done(&err)
	return q.setYanked(ctx, pkg, version, true)
}

func (q *queries) Unyank(ctx context.Context, pkg, version string) (err error) {
	m := startQuery("Unyank", q.pool)
	defer m.done(&err)
	return q.setYanked(ctx, pkg, version, false)
}

func (q *queries) setYanked(ctx context.Context, pkg, version string, yanked bool) error {
	sql, args, err := psql.Update("package_versions").Set(goqu.Record{"yanked": yanked}).
		Where(goqu.Ex{"package": pkg, "version": version}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return registry.New(registry.ErrBackend, "setYanked", "update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.New(registry.ErrNotFound, "setYanked", "no such version", nil)
	}
	return nil
}

// RemoveCrateVersion hard-deletes a version row. Application callers must
// confirm Package.CanRemove and coordinate the matching index removal
// (the version's blobs are left in place); see spec §4.1's "outside the
// normal yank workflow".
func (q *queries) RemoveCrateVersion(ctx context.Context, pkg, version string) (err error) {
	m := startQuery("RemoveCrateVersion", q.pool)
	defer m.done(&err)

	sql, args, err := psql.Delete("package_versions").
		Where(goqu.Ex{"package": pkg, "version": version}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return registry.New(registry.ErrBackend, "RemoveCrateVersion", "delete failed", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.New(registry.ErrNotFound, "RemoveCrateVersion", "no such version", nil)
	}
	return nil
}

func (q *queries) SetDeprecated(ctx context.Context, pkg string, deprecated bool) (err error) {
	m := startQuery("SetDeprecated", q.pool)
	defer m.done(&err)

	sql, args, err := psql.Update("packages").Set(goqu.Record{"is_deprecated": deprecated}).
		Where(goqu.Ex{"name": pkg}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return registry.New(registry.ErrBackend, "SetDeprecated", "update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.New(registry.ErrNotFound, "SetDeprecated", "no such crate", nil)
	}
	return nil
}
