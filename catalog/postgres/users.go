package postgres

import (
	"context"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	registry "github.com/cratery/registry"
)

var psql = goqu.Dialect("postgres")

func scanUser(row pgx.Row) (*registry.User, error) {
	u := &registry.User{}
	var rolesCSV string
	if err := row.Scan(&u.ID, &u.Email, &u.Login, &u.DisplayName, &u.Active, &rolesCSV); err != nil {
		return nil, err
	}
	u.Roles = registry.ParseRolesCSV(rolesCSV)
	return u, nil
}

var userColumns = []any{"id", "email", "login", "display_name", "active", "roles_csv"}

// CheckIsUser returns the id of the user with the given email, or
// registry.ErrNotFound if none exists.
func (q *queries) CheckIsUser(ctx context.Context, email string) (id int64, err error) {
	m := startQuery("CheckIsUser", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("users").Select("id").Where(goqu.Ex{"email": email}).Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	if err = q.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if err == pgx.ErrNoRows {
			return 0, registry.New(registry.ErrNotFound, "CheckIsUser", "no such user", err)
		}
		return 0, registry.New(registry.ErrBackend, "CheckIsUser", "query failed", err)
	}
	return id, nil
}

// CheckIsAdmin returns registry.ErrForbidden if uid is not an active admin.
func (q *queries) CheckIsAdmin(ctx context.Context, uid int64) (err error) {
	m := startQuery("CheckIsAdmin", q.pool)
	defer m.done(&err)

	u, err := q.GetUserByID(ctx, uid)
	if err != nil {
		return err
	}
	if !u.Active || !u.IsAdmin() {
		return registry.New(registry.ErrForbidden, "CheckIsAdmin", "not an admin", nil)
	}
	return nil
}

func (q *queries) GetUserByID(ctx context.Context, uid int64) (u *registry.User, err error) {
	m := startQuery("GetUserByID", q.pool)
	defer m.done(&err)
	return q.getUserBy(ctx, goqu.Ex{"id": uid})
}

func (q *queries) GetUserByLogin(ctx context.Context, login string) (u *registry.User, err error) {
	m := startQuery("GetUserByLogin", q.pool)
	defer m.done(&err)
	return q.getUserBy(ctx, goqu.Ex{"login": login})
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (u *registry.User, err error) {
	m := startQuery("GetUserByEmail", q.pool)
	defer m.done(&err)
	return q.getUserBy(ctx, goqu.Ex{"email": email})
}

func (q *queries) getUserBy(ctx context.Context, pred goqu.Ex) (*registry.User, error) {
	sql, args, err := psql.From("users").Select(userColumns...).Where(pred).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	u, err := scanUser(q.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, registry.New(registry.ErrNotFound, "GetUser", "no such user", err)
		}
		return nil, registry.New(registry.ErrBackend, "GetUser", "query failed", err)
	}
	return u, nil
}

func (q *queries) ListUsers(ctx context.Context) (out []*registry.User, err error) {
	m := startQuery("ListUsers", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("users").Select(userColumns...).Order(goqu.C("login").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "ListUsers", "query failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, registry.New(registry.ErrBackend, "ListUsers", "scan failed", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateUser inserts a new user, granting it admin unconditionally if it is
// the first user the catalog has ever seen (spec §3's seeded-admin rule).
// The count and the insert run in one transaction on the write pool's
// single connection, so no other catalog write can run between them.
func (q *queries) CreateUser(ctx context.Context, u *registry.User) (out *registry.User, err error) {
	if pool, ok := q.db.(*pgxpool.Pool); ok {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, registry.New(registry.ErrBackend, "CreateUser", "begin transaction failed", err)
		}
		defer tx.Rollback(ctx)
		created, err := newQueries(tx, q.pool).CreateUser(ctx, u)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, registry.New(registry.ErrBackend, "CreateUser", "commit failed", err)
		}
		return created, nil
	}
	m := startQuery("CreateUser", q.pool)
	defer m.done(&err)

	var count int64
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return nil, registry.New(registry.ErrBackend, "CreateUser", "count users failed", err)
	}
	roles := u.Roles
	if count == 0 && !u.IsAdmin() {
		roles = append(append([]string{}, roles...), registry.RoleAdmin)
	}
	rolesCSV := (&registry.User{Roles: roles}).RolesCSV()

	sql, args, err := psql.Insert("users").Rows(goqu.Record{
		"email":        u.Email,
		"login":        u.Login,
		"display_name": u.DisplayName,
		"active":       true,
		"roles_csv":    rolesCSV,
	}).Returning(userColumns...).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	created, err := scanUser(q.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, registry.New(registry.ErrConflict, "CreateUser", "insert failed", err)
	}
	return created, nil
}

func (q *queries) UpdateUser(ctx context.Context, requester int64, u *registry.User) (err error) {
	m := startQuery("UpdateUser", q.pool)
	defer m.done(&err)

	if u.ID != requester {
		if err := q.CheckIsAdmin(ctx, requester); err != nil {
			return err
		}
	} else {
		current, err := q.GetUserByID(ctx, requester)
		if err != nil {
			return err
		}
		if current.IsAdmin() && !u.IsAdmin() {
			return registry.New(registry.ErrForbidden, "UpdateUser", "cannot remove your own admin role", nil)
		}
	}
	sql, args, err := psql.Update("users").Set(goqu.Record{
		"display_name": u.DisplayName,
		"roles_csv":    u.RolesCSV(),
	}).Where(goqu.Ex{"id": u.ID}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return registry.New(registry.ErrBackend, "UpdateUser", "update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.New(registry.ErrNotFound, "UpdateUser", "no such user", nil)
	}
	return nil
}

func (q *queries) DeactivateUser(ctx context.Context, requester, target int64) (err error) {
	m := startQuery("DeactivateUser", q.pool)
	defer m.done(&err)

	if requester == target {
		return registry.New(registry.ErrForbidden, "DeactivateUser", "cannot deactivate yourself", nil)
	}
	if err := q.CheckIsAdmin(ctx, requester); err != nil {
		return err
	}
	return q.setActive(ctx, target, false)
}

func (q *queries) ReactivateUser(ctx context.Context, target int64) (err error) {
	m := startQuery("ReactivateUser", q.pool)
	defer m.done(&err)
	return q.setActive(ctx, target, true)
}

func (q *queries) setActive(ctx context.Context, target int64, active bool) error {
	sql, args, err := psql.Update("users").Set(goqu.Record{"active": active}).
		Where(goqu.Ex{"id": target}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	if _, err := q.db.Exec(ctx, sql, args...); err != nil {
		return registry.New(registry.ErrBackend, "setActive", "update failed", err)
	}
	return nil
}

func (q *queries) DeleteUser(ctx context.Context, requester, target int64) (err error) {
	m := startQuery("DeleteUser", q.pool)
	defer m.done(&err)

	if requester == target {
		return registry.New(registry.ErrForbidden, "DeleteUser", "cannot delete yourself", nil)
	}
	if err := q.CheckIsAdmin(ctx, requester); err != nil {
		return err
	}
	sql, args, err := psql.Delete("users").Where(goqu.Ex{"id": target}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	if _, err := q.db.Exec(ctx, sql, args...); err != nil {
		return registry.New(registry.ErrBackend, "DeleteUser", "delete failed", err)
	}
	return nil
}
