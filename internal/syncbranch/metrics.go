package syncbranch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "syncbranches"

const (
	runsMetricName                = "runs_total"
	branchesCreatedMetricName     = "branches_created_total"
	pullRequestsCreatedMetricName = "pull_requests_created_total"
	notificationsFailedMetricName = "notifications_failed_total"
	runDurationMetricName         = "run_duration_seconds"
)

const resultLabel = "result"

type metricCollector struct {
	runs                *prometheus.CounterVec
	branchesCreated     prometheus.Counter
	pullRequestsCreated prometheus.Counter
	notificationsFailed prometheus.Counter
	runDuration         prometheus.Gauge
}

func newMetricCollector(reg prometheus.Registerer) *metricCollector {
	factory := promauto.With(reg)

	return &metricCollector{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      runsMetricName,
				Help:      "count of sync runs by result",
			},
			[]string{resultLabel},
		),
		branchesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      branchesCreatedMetricName,
				Help:      "count of created sync branches",
			},
		),
		pullRequestsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      pullRequestsCreatedMetricName,
				Help:      "count of created pull requests",
			},
		),
		notificationsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      notificationsFailedMetricName,
				Help:      "count of notifications that could not be delivered",
			},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      runDurationMetricName,
				Help:      "duration of the last sync run",
			},
		),
	}
}

func (m *metricCollector) RunsInc(status Status) {
	m.runs.With(prometheus.Labels{resultLabel: string(status)}).Inc()
}

func (m *metricCollector) BranchesCreatedInc() {
	m.branchesCreated.Inc()
}

func (m *metricCollector) PullRequestsCreatedInc() {
	m.pullRequestsCreated.Inc()
}

func (m *metricCollector) NotificationsFailedInc() {
	m.notificationsFailed.Inc()
}

func (m *metricCollector) ObserveRunDuration(d time.Duration) {
	m.runDuration.Set(d.Seconds())
}
