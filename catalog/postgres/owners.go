package postgres

import (
	"context"

	"github.com/doug-martin/goqu/v8"
	"github.com/jackc/pgx/v5"

	registry "github.com/cratery/registry"
)

func (q *queries) GetOwners(ctx context.Context, pkg string) (out []*registry.User, err error) {
	m := startQuery("GetOwners", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("users").
		Select(goqu.T("users").Col("id"), goqu.T("users").Col("email"), goqu.T("users").Col("login"),
			goqu.T("users").Col("display_name"), goqu.T("users").Col("active"), goqu.T("users").Col("roles_csv")).
		InnerJoin(goqu.T("package_owners"), goqu.On(goqu.Ex{"package_owners.user_id": goqu.I("users.id")})).
		Where(goqu.Ex{"package_owners.package": pkg}).Order(goqu.C("login").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "GetOwners", "query failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, registry.New(registry.ErrBackend, "GetOwners", "scan failed", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (q *queries) AddOwner(ctx context.Context, pkg string, uid int64) (err error) {
	m := startQuery("AddOwner", q.pool)
	defer m.done(&err)

	sql, args, err := psql.Insert("package_owners").Rows(goqu.Record{
		"package": pkg,
		"user_id": uid,
	}).OnConflict(goqu.DoNothing()).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	if _, err := q.db.Exec(ctx, sql, args...); err != nil {
		return registry.New(registry.ErrBackend, "AddOwner", "insert failed", err)
	}
	return nil
}

// RemoveOwner deletes one (package, uid) ownership row. It does not enforce
// "at least one owner must remain" — the spec §3 invariant the caller
// (Application.RemoveOwner) must check with GetOwners before calling this,
// since that check spans a read and a write the transaction must see
// consistently.
func (q *queries) RemoveOwner(ctx context.Context, pkg string, uid int64) (err error) {
	m := startQuery("RemoveOwner", q.pool)
	defer m.done(&err)

	sql, args, err := psql.Delete("package_owners").
		Where(goqu.Ex{"package": pkg, "user_id": uid}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return registry.New(registry.ErrBackend, "RemoveOwner", "delete failed", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.New(registry.ErrNotFound, "RemoveOwner", "not an owner", nil)
	}
	return nil
}

func (q *queries) IsOwner(ctx context.Context, pkg string, uid int64) (ok bool, err error) {
	m := startQuery("IsOwner", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("package_owners").Select(goqu.L("1")).
		Where(goqu.Ex{"package": pkg, "user_id": uid}).Prepared(true).ToSQL()
	if err != nil {
		return false, err
	}
	var one int
	if err = q.db.QueryRow(ctx, sql, args...).Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, registry.New(registry.ErrBackend, "IsOwner", "query failed", err)
	}
	return true, nil
}
