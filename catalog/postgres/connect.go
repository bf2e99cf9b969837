package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quay/zlog"
)

// poolKind names the two pools connectPool opens, used both for the
// application_name suffix and as the pgxCollector's "pool" label.
type poolKind string

const (
	poolRead  poolKind = "read"
	poolWrite poolKind = "write"
)

// connectPool parses connString and opens a pgxpool.Pool sized for kind: the
// write pool is capped at a single connection so catalog writes are
// serialized process-wide (spec §4.1/§5), while the read pool fans out to
// readPoolSize connections.
func connectPool(ctx context.Context, connString, applicationName string, kind poolKind, readPoolSize int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("catalog/postgres: parse conn string: %w", err)
	}
	switch kind {
	case poolWrite:
		cfg.MaxConns = 1
	case poolRead:
		cfg.MaxConns = readPoolSize
	}
	const appnameKey = "application_name"
	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params[appnameKey]; !ok {
		params[appnameKey] = applicationName + "-" + string(kind)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog/postgres: create pool: %w", err)
	}

	if err := prometheus.Register(newPoolCollector(pool, applicationName, string(kind))); err != nil {
		zlog.Info(ctx).Str("pool", string(kind)).Msg("pool metrics already registered")
	}

	return pool, nil
}
