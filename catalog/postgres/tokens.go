package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v8"
	"github.com/jackc/pgx/v5"

	registry "github.com/cratery/registry"
)

func scanUserToken(row pgx.Row) (*registry.UserToken, error) {
	t := &registry.UserToken{}
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.SecretSum, &t.LastUsed, &t.CanWrite, &t.CanAdmin); err != nil {
		return nil, err
	}
	return t, nil
}

var userTokenColumns = []any{"id", "user_id", "name", "secret_hash", "last_used", "can_write", "can_admin"}

func (q *queries) ListTokens(ctx context.Context, uid int64) (out []*registry.UserToken, err error) {
	m := startQuery("ListTokens", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("user_tokens").Select(userTokenColumns...).
		Where(goqu.Ex{"user_id": uid}).Order(goqu.C("id").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "ListTokens", "query failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanUserToken(rows)
		if err != nil {
			return nil, registry.New(registry.ErrBackend, "ListTokens", "scan failed", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *queries) CreateToken(ctx context.Context, t *registry.UserToken) (out *registry.UserToken, err error) {
	m := startQuery("CreateToken", q.pool)
	defer m.done(&err)

	sql, args, err := psql.Insert("user_tokens").Rows(goqu.Record{
		"user_id":     t.UserID,
		"name":        t.Name,
		"secret_hash": t.SecretSum,
		"can_write":   t.CanWrite,
		"can_admin":   t.CanAdmin,
	}).Returning(userTokenColumns...).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	created, err := scanUserToken(q.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, registry.New(registry.ErrConflict, "CreateToken", "insert failed", err)
	}
	return created, nil
}

func (q *queries) RevokeToken(ctx context.Context, uid, tokenID int64) (err error) {
	m := startQuery("RevokeToken", q.pool)
	defer m.done(&err)

	sql, args, err := psql.Delete("user_tokens").
		Where(goqu.Ex{"id": tokenID, "user_id": uid}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return registry.New(registry.ErrBackend, "RevokeToken", "delete failed", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.New(registry.ErrNotFound, "RevokeToken", "no such token", nil)
	}
	return nil
}

// FindUserTokenCandidates returns every token owned by the active user with
// the given login, for the caller to compare secret hashes against. Cargo
// presents only the opaque secret at auth time, not which token it names, so
// the candidate set is narrowed by a claimed login out of band (e.g. a
// Basic-auth username) or, failing that, must be the full set — see
// auth.Plane. A deactivated user's tokens are excluded, per spec.
func (q *queries) FindUserTokenCandidates(ctx context.Context, login string) (out []*registry.UserToken, err error) {
	m := startQuery("FindUserTokenCandidates", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("user_tokens").
		Select(goqu.T("user_tokens").Col("id"), goqu.T("user_tokens").Col("user_id"),
			goqu.T("user_tokens").Col("name"), goqu.T("user_tokens").Col("secret_hash"),
			goqu.T("user_tokens").Col("last_used"), goqu.T("user_tokens").Col("can_write"),
			goqu.T("user_tokens").Col("can_admin")).
		InnerJoin(goqu.T("users"), goqu.On(goqu.Ex{"user_tokens.user_id": goqu.I("users.id")})).
		Where(goqu.Ex{"users.login": login, "users.active": true}).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "FindUserTokenCandidates", "query failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanUserToken(rows)
		if err != nil {
			return nil, registry.New(registry.ErrBackend, "FindUserTokenCandidates", "scan failed", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *queries) FindGlobalToken(ctx context.Context, name string) (t *registry.GlobalToken, err error) {
	m := startQuery("FindGlobalToken", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("global_tokens").Select("id", "name", "secret_hash", "last_used").
		Where(goqu.Ex{"name": name}).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	t = &registry.GlobalToken{}
	if err := q.db.QueryRow(ctx, sql, args...).Scan(&t.ID, &t.Name, &t.SecretSum, &t.LastUsed); err != nil {
		if err == pgx.ErrNoRows {
			return nil, registry.New(registry.ErrNotFound, "FindGlobalToken", "no such token", err)
		}
		return nil, registry.New(registry.ErrBackend, "FindGlobalToken", "query failed", err)
	}
	return t, nil
}

func (q *queries) TouchToken(ctx context.Context, tokenID int64, isGlobal bool) (err error) {
	m := startQuery("TouchToken", q.pool)
	defer m.done(&err)

	table := "user_tokens"
	if isGlobal {
		table = "global_tokens"
	}
	sql, args, err := psql.Update(table).Set(goqu.Record{"last_used": time.Now().UTC()}).
		Where(goqu.Ex{"id": tokenID}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	if _, err := q.db.Exec(ctx, sql, args...); err != nil {
		return registry.New(registry.ErrBackend, "TouchToken", "update failed", err)
	}
	return nil
}
