package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	registry "github.com/cratery/registry"
)

// IncrementDownloadCount bumps a version's total download_count and its
// 90-day DownloadsSeries ring buffer for today. When called on a pool, the
// read-then-write runs in one transaction on that pool's connection; on the
// single-connection write pool (spec §4.1, §5) this keeps two concurrent
// increments of the same row from interleaving.
func (q *queries) IncrementDownloadCount(ctx context.Context, pkg, version string) (err error) {
	if pool, ok := q.db.(*pgxpool.Pool); ok {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return registry.New(registry.ErrBackend, "IncrementDownloadCount", "begin transaction failed", err)
		}
		defer tx.Rollback(ctx)
		if err := newQueries(tx, q.pool).IncrementDownloadCount(ctx, pkg, version); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return registry.New(registry.ErrBackend, "IncrementDownloadCount", "commit failed", err)
		}
		return nil
	}
	m := startQuery("IncrementDownloadCount", q.pool)
	defer m.done(&err)

	selSQL, selArgs, err := psql.From("package_versions").Select("downloads_series").
		Where(goqu.Ex{"package": pkg, "version": version}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	var seriesBytes []byte
	if err = q.db.QueryRow(ctx, selSQL, selArgs...).Scan(&seriesBytes); err != nil {
		if err == pgx.ErrNoRows {
			return registry.New(registry.ErrNotFound, "IncrementDownloadCount", "no such version", err)
		}
		return registry.New(registry.ErrBackend, "IncrementDownloadCount", "query failed", err)
	}

	now := time.Now().UTC()
	series := registry.DownloadsSeriesFromBytes(seriesBytes).Increment(now)

	updSQL, updArgs, err := psql.Update("package_versions").Set(goqu.Record{
		"download_count":   goqu.L("download_count + 1"),
		"downloads_series": series.Bytes(),
	}).Where(goqu.Ex{"package": pkg, "version": version}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	if _, err = q.db.Exec(ctx, updSQL, updArgs...); err != nil {
		return registry.New(registry.ErrBackend, "IncrementDownloadCount", "update failed", err)
	}
	return nil
}
