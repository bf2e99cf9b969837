package postgres

import (
	"context"
	"sort"

	"github.com/doug-martin/goqu/v8"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/catalog"
	"github.com/cratery/registry/semverutil"
)

// versionRow is one non-yanked (version, description) pair for a matched
// package, carried from SQL into Go so the "newest version" reduction can
// go through semverutil.Max instead of SQL's lexicographic MAX(version) —
// see spec §4.1's "for each name pick the newest non-yanked version" and
// semverutil's package doc.
type versionRow struct {
	version     string
	description string
}

// Search matches crates by a naive case-insensitive name/description
// substring, reports each crate's semver-maximal non-yanked, non-pre-release
// version, orders crates by their total downloads (highest first), and
// clamps the result to perPage. There is no full-text ranking.
func (q *queries) Search(ctx context.Context, query string, perPage int, includeDeprecated bool) (out []catalog.SearchHit, err error) {
	m := startQuery("Search", q.pool)
	defer m.done(&err)

	perPage = catalog.ClampPerPage(perPage)
	like := "%" + query + "%"

	ds := psql.From("packages").
		Select(
			goqu.T("packages").Col("name"),
			goqu.T("package_versions").Col("version"),
			goqu.T("package_versions").Col("description"),
			goqu.T("package_versions").Col("download_count"),
		).
		InnerJoin(goqu.T("package_versions"), goqu.On(goqu.Ex{"package_versions.package": goqu.I("packages.name")})).
		Where(goqu.Ex{"package_versions.yanked": false})

	if query != "" {
		ds = ds.Where(goqu.Or(
			goqu.T("packages").Col("name").ILike(like),
			goqu.T("package_versions").Col("description").ILike(like),
		))
	}
	if !includeDeprecated {
		ds = ds.Where(goqu.Ex{"packages.is_deprecated": false})
	}

	sql, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "Search", "query failed", err)
	}
	defer rows.Close()

	versions := make(map[string][]versionRow)
	downloads := make(map[string]int64)
	order := make([]string, 0)
	for rows.Next() {
		var name, version, description string
		var count int64
		if err := rows.Scan(&name, &version, &description, &count); err != nil {
			return nil, registry.New(registry.ErrBackend, "Search", "scan failed", err)
		}
		if _, seen := downloads[name]; !seen {
			order = append(order, name)
		}
		versions[name] = append(versions[name], versionRow{version: version, description: description})
		downloads[name] += count
	}
	if err := rows.Err(); err != nil {
		return nil, registry.New(registry.ErrBackend, "Search", "row iteration failed", err)
	}

	for _, name := range order {
		head, ok := semverutil.Max(versions[name], func(v versionRow) string { return v.version })
		if !ok {
			continue
		}
		out = append(out, catalog.SearchHit{
			Package:     name,
			MaxVersion:  head.version,
			Description: head.description,
			Downloads:   downloads[name],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Downloads > out[j].Downloads })
	if len(out) > perPage {
		out = out[:perPage]
	}
	return out, nil
}
