package postgres

import (
	"context"

	"github.com/quay/zlog"
)

// ReconcileIndex resolves Open Question #1 (DESIGN.md): rather than trying
// to auto-repair a Catalog/Index mismatch left by a crash between the SQL
// commit and the index commit, it logs every package_versions row that
// present has no matching entry, so an operator can decide whether to
// republish or manually patch the index. present is supplied by the caller
// (the index engine's enumeration of what it actually has committed), since
// the catalog has no visibility into the index's storage.
func (s *Store) ReconcileIndex(ctx context.Context, present func(pkg, version string) bool) error {
	sql := `SELECT package, version FROM package_versions WHERE yanked = false ORDER BY package, version`
	rows, err := s.read.Query(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()

	var checked, orphaned int
	for rows.Next() {
		var pkg, version string
		if err := rows.Scan(&pkg, &version); err != nil {
			return err
		}
		checked++
		if !present(pkg, version) {
			orphaned++
			zlog.Error(ctx).
				Str("package", pkg).
				Str("version", version).
				Msg("catalog row has no matching index entry")
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	zlog.Info(ctx).Int("checked", checked).Int("orphaned", orphaned).Msg("index reconciliation complete")
	return nil
}
