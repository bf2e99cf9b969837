package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v8"
	"github.com/jackc/pgx/v5"

	registry "github.com/cratery/registry"
)

// GetUndocumentedCrates returns every (package, version, target) that has
// neither a PackageVersionDoc row nor a prior attempt, expanding a
// Package's EffectiveTargets when it has no explicit row yet. Used at
// startup by the documentation orchestrator to recover
// from crate versions published while doc generation was unavailable, per
// spec §4.6's missing-on-launch trigger.
func (q *queries) GetUndocumentedCrates(ctx context.Context, defaultTarget string) (out []registry.DocGenSpec, err error) {
	m := startQuery("GetUndocumentedCrates", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("package_versions").
		Select(goqu.T("package_versions").Col("package"), goqu.T("package_versions").Col("version"),
			goqu.T("packages").Col("targets_csv"), goqu.T("packages").Col("native_targets_csv")).
		InnerJoin(goqu.T("packages"), goqu.On(goqu.Ex{"packages.name": goqu.I("package_versions.package")})).
		LeftJoin(goqu.T("package_version_docs"), goqu.On(goqu.Ex{
			"package_version_docs.package": goqu.I("package_versions.package"),
			"package_version_docs.version": goqu.I("package_versions.version"),
		})).
		Where(goqu.Ex{
			"package_versions.yanked":         false,
			"package_version_docs.package":    nil,
		}).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "GetUndocumentedCrates", "query failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pkg, version, targetsCSV, nativeCSV string
		if err := rows.Scan(&pkg, &version, &targetsCSV, &nativeCSV); err != nil {
			return nil, registry.New(registry.ErrBackend, "GetUndocumentedCrates", "scan failed", err)
		}
		targets := splitCSVPkg(targetsCSV)
		if len(targets) == 0 {
			targets = []string{defaultTarget}
		}
		native := make(map[string]bool, len(splitCSVPkg(nativeCSV)))
		for _, t := range splitCSVPkg(nativeCSV) {
			native[t] = true
		}
		for _, t := range targets {
			out = append(out, registry.DocGenSpec{Package: pkg, Version: version, Target: t, UseNative: native[t]})
		}
	}
	return out, rows.Err()
}

func (q *queries) SetCrateDocumentation(ctx context.Context, pkg, version, target string, attempted, present bool) (err error) {
	m := startQuery("SetCrateDocumentation", q.pool)
	defer m.done(&err)

	sql, args, err := psql.Insert("package_version_docs").Rows(goqu.Record{
		"package":      pkg,
		"version":      version,
		"target":       target,
		"is_attempted": attempted,
		"is_present":   present,
	}).OnConflict(goqu.DoUpdate("package, version, target", goqu.Record{
		"is_attempted": attempted,
		"is_present":   present,
	})).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	if _, err := q.db.Exec(ctx, sql, args...); err != nil {
		return registry.New(registry.ErrBackend, "SetCrateDocumentation", "upsert failed", err)
	}
	return nil
}

var docGenJobColumns = []any{
	"id", "package", "version", "target", "use_native", "capabilities_csv",
	"state", "queued_on", "started_on", "finished_on", "last_update",
	"trigger_kind", "trigger_user", "output",
}

func scanDocGenJob(row pgx.Row) (*registry.DocGenJob, error) {
	var j registry.DocGenJob
	var capsCSV string
	var state, trigger string
	var triggerUser *int64
	if err := row.Scan(
		&j.ID, &j.Package, &j.Version, &j.Target, &j.UseNative, &capsCSV,
		&state, &j.QueuedOn, &j.StartedOn, &j.FinishedOn, &j.LastUpdate,
		&trigger, &triggerUser, &j.Output,
	); err != nil {
		return nil, err
	}
	j.Capabilities = splitCSVPkg(capsCSV)
	j.State = registry.DocGenJobState(state)
	j.Trigger = registry.DocGenTrigger(trigger)
	j.TriggerUser = triggerUser
	return &j, nil
}

// CreateDocGenJob enqueues a documentation build, short-circuiting to the
// existing Queued job for the same (package, version, target) if one
// exists — spec §4.6's "enqueue is idempotent for a given spec".
func (q *queries) CreateDocGenJob(ctx context.Context, job *registry.DocGenJob) (out *registry.DocGenJob, err error) {
	m := startQuery("CreateDocGenJob", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("docgen_jobs").Select(docGenJobColumns...).Where(goqu.Ex{
		"package": job.Package, "version": job.Version, "target": job.Target,
		"state": string(registry.DocGenQueued),
	}).Limit(1).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	if existing, err := scanDocGenJob(q.db.QueryRow(ctx, sql, args...)); err == nil {
		return existing, nil
	} else if err != pgx.ErrNoRows {
		return nil, registry.New(registry.ErrBackend, "CreateDocGenJob", "lookup existing job failed", err)
	}

	insertSQL, insertArgs, err := psql.Insert("docgen_jobs").Rows(goqu.Record{
		"package":          job.Package,
		"version":          job.Version,
		"target":           job.Target,
		"use_native":       job.UseNative,
		"capabilities_csv": strings.Join(job.Capabilities, ","),
		"state":            string(registry.DocGenQueued),
		"trigger_kind":     string(job.Trigger),
		"trigger_user":     job.TriggerUser,
	}).Returning(docGenJobColumns...).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	return scanDocGenJob(q.db.QueryRow(ctx, insertSQL, insertArgs...))
}

// GetNextDocGenJob returns the lowest-id Queued job (FIFO), or
// registry.ErrNotFound if the queue is empty.
func (q *queries) GetNextDocGenJob(ctx context.Context) (out *registry.DocGenJob, err error) {
	m := startQuery("GetNextDocGenJob", q.pool)
	defer m.done(&err)

	sql, args, err := psql.From("docgen_jobs").Select(docGenJobColumns...).
		Where(goqu.Ex{"state": string(registry.DocGenQueued)}).
		Order(goqu.I("id").Asc()).Limit(1).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	job, err := scanDocGenJob(q.db.QueryRow(ctx, sql, args...))
	if err == pgx.ErrNoRows {
		return nil, registry.New(registry.ErrNotFound, "GetNextDocGenJob", "no queued jobs", nil)
	}
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "GetNextDocGenJob", "query failed", err)
	}
	return job, nil
}

// StartDocGenJob transitions a job Queued -> Working and records started_on.
func (q *queries) StartDocGenJob(ctx context.Context, id int64) (err error) {
	m := startQuery("StartDocGenJob", q.pool)
	defer m.done(&err)

	now := time.Now().UTC()
	sql, args, err := psql.Update("docgen_jobs").Set(goqu.Record{
		"state":       string(registry.DocGenWorking),
		"started_on":  now,
		"last_update": now,
	}).Where(goqu.Ex{"id": id}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return registry.New(registry.ErrBackend, "StartDocGenJob", "update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.New(registry.ErrNotFound, "StartDocGenJob", "no such job", nil)
	}
	return nil
}

// FinishDocGenJob records a terminal state (Success or Failure), the
// accumulated worker log, and finished_on.
func (q *queries) FinishDocGenJob(ctx context.Context, id int64, state registry.DocGenJobState, output string) (err error) {
	m := startQuery("FinishDocGenJob", q.pool)
	defer m.done(&err)

	now := time.Now().UTC()
	sql, args, err := psql.Update("docgen_jobs").Set(goqu.Record{
		"state":       string(state),
		"finished_on": now,
		"last_update": now,
		"output":      output,
	}).Where(goqu.Ex{"id": id}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return registry.New(registry.ErrBackend, "FinishDocGenJob", "update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.New(registry.ErrNotFound, "FinishDocGenJob", "no such job", nil)
	}
	return nil
}
