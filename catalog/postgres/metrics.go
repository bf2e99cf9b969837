package postgres

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricLabels  = []string{"query", "success", "pool"}
	databaseTimer = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Subsystem: "postgres",
		Name:      "query_duration_seconds",
		Help:      "Database query duration for the named catalog query.",
	}, metricLabels)
	databaseCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Subsystem: "postgres",
		Name:      "query_total",
		Help:      "Database query count for the named catalog query.",
	}, metricLabels)
)

// queryMetric times one named query against one pool, recording its outcome
// when its done method is deferred with the call's named error return.
// Grounded on the teacher's datastore/postgres/store_metrics.go query.Start,
// generalized from its embedded-SQL-file naming to goqu-built queries named
// by call site.
type queryMetric struct {
	labels prometheus.Labels
	timer  *prometheus.Timer
}

func startQuery(name string, pool poolKind) queryMetric {
	labels := prometheus.Labels{"query": name, "pool": string(pool)}
	q := queryMetric{labels: labels}
	q.timer = prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		databaseTimer.With(labels).Observe(v)
	}))
	return q
}

func (q *queryMetric) done(err *error) {
	if q.timer == nil {
		return
	}
	q.labels["success"] = strconv.FormatBool(errors.Is(*err, nil))
	databaseCounter.With(q.labels).Inc()
	q.timer.ObserveDuration()
	q.timer = nil
}
