package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v8"

	registry "github.com/cratery/registry"
)

// GetUnanalyzedCrates returns the head DepsSpec (package, version) of every
// crate whose last dependency analysis is missing or older than
// staleMinutes, per spec §4.7's periodic re-scan.
func (q *queries) GetUnanalyzedCrates(ctx context.Context, staleMinutes int) (out []registry.DepsSpec, err error) {
	m := startQuery("GetUnanalyzedCrates", q.pool)
	defer m.done(&err)

	cutoff := time.Now().UTC().Add(-time.Duration(staleMinutes) * time.Minute)
	sql, args, err := psql.From("package_versions").Select("package", "version").
		Where(goqu.Ex{"yanked": false}).
		Where(goqu.Or(
			goqu.C("deps_last_check").IsNull(),
			goqu.C("deps_last_check").Lt(cutoff),
		)).
		Order(goqu.C("package").Asc(), goqu.C("uploaded_at").Desc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "GetUnanalyzedCrates", "query failed", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var spec registry.DepsSpec
		if err := rows.Scan(&spec.Package, &spec.Version); err != nil {
			return nil, registry.New(registry.ErrBackend, "GetUnanalyzedCrates", "scan failed", err)
		}
		// uploaded_at DESC within a package means the first row seen per
		// package is its most recent non-yanked version: the head to analyze.
		if seen[spec.Package] {
			continue
		}
		seen[spec.Package] = true
		out = append(out, spec)
	}
	return out, rows.Err()
}

func (q *queries) SetCrateDepsAnalysis(ctx context.Context, pkg, version string, hasOutdated, hasCVEs bool) (err error) {
	m := startQuery("SetCrateDepsAnalysis", q.pool)
	defer m.done(&err)

	sql, args, err := psql.Update("package_versions").Set(goqu.Record{
		"deps_last_check":   time.Now().UTC(),
		"deps_has_outdated": hasOutdated,
		"deps_has_cves":     hasCVEs,
	}).Where(goqu.Ex{"package": pkg, "version": version}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return registry.New(registry.ErrBackend, "SetCrateDepsAnalysis", "update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.New(registry.ErrNotFound, "SetCrateDepsAnalysis", "no such version", nil)
	}
	return nil
}
