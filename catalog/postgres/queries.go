package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx is the subset of *pgxpool.Pool and pgx.Tx that queries needs. A
// single queries struct backs both the auto-committing Store methods (bound
// to a pool) and an open Tx (bound to that Tx's connection), avoiding two
// copies of every query body. Grounded on the sqlc-generated DBTX pattern
// common across the pack's Postgres-backed services, adapted by hand since
// this module hand-writes its queries with goqu rather than generating them.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements catalog.Queries against whichever dbtx it's bound to.
// pool names which pool it runs against (for a Tx, the pool the transaction
// was begun on), for the query metrics.
type queries struct {
	db   dbtx
	pool poolKind
}

func newQueries(db dbtx, pool poolKind) *queries {
	return &queries{db: db, pool: pool}
}
