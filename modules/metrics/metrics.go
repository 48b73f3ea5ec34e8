// Package metrics owns the Prometheus registry for taskflow and the
// counters every other module records into.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and instruments. A nil *Metrics is valid and
// records nothing, so callers never need to check.
type Metrics struct {
	namespace     string
	registry      *prometheus.Registry
	intake        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
}

// New creates a registry with the taskflow instruments and the standard
// Go and process collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "taskflow"
	}
	reg := prometheus.NewRegistry()
	m := &Metrics{
		namespace: namespace,
		registry:  reg,
		intake: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_results_total",
			Help:      "Intake results by kind",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by event kind and outcome",
		}, []string{"kind", "status"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and outcome",
		}, []string{"job", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job run time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
	reg.MustRegister(m.intake, m.notifications, m.jobRuns, m.jobDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Namespace is the metric name prefix.
func (m *Metrics) Namespace() string {
	if m == nil {
		return ""
	}
	return m.namespace
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IntakeResult counts one intake outcome.
func (m *Metrics) IntakeResult(kind string) {
	if m == nil {
		return
	}
	m.intake.WithLabelValues(kind).Inc()
}

// Notification counts one send attempt.
func (m *Metrics) Notification(kind domain.EventKind, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(kind), status).Inc()
}

// JobRun records a job's outcome and run time.
func (m *Metrics) JobRun(job string, err error, took time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(took.Seconds())
}

// StatsFunc loads the current task statistics.
type StatsFunc func(ctx context.Context) (domain.TaskStats, error)

// TaskCollector reports task counts by status as gauges computed on scrape.
type TaskCollector struct {
	stats      StatsFunc
	timeout    time.Duration
	tasksDesc  *prometheus.Desc
	overdue    *prometheus.Desc
	completion *prometheus.Desc
}

// NewTaskCollector creates a collector backed by stats.
func NewTaskCollector(namespace string, stats StatsFunc) *TaskCollector {
	if namespace == "" {
		namespace = "taskflow"
	}
	return &TaskCollector{
		stats:   stats,
		timeout: 5 * time.Second,
		tasksDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_tasks", namespace),
			"Tasks by status",
			[]string{"status"}, nil,
		),
		overdue: prometheus.NewDesc(
			fmt.Sprintf("%s_tasks_overdue", namespace),
			"Incomplete tasks past their due date",
			nil, nil,
		),
		completion: prometheus.NewDesc(
			fmt.Sprintf("%s_tasks_completion_rate", namespace),
			"Completed tasks as a percentage of all tasks",
			nil, nil,
		),
	}
}

func (c *TaskCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasksDesc
	ch <- c.overdue
	ch <- c.completion
}

func (c *TaskCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	s, err := c.stats(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.tasksDesc, err)
		return
	}
	for status, n := range map[domain.Status]int{
		domain.StatusPending:    s.Pending,
		domain.StatusInProgress: s.InProgress,
		domain.StatusCompleted:  s.Completed,
		domain.StatusBlocked:    s.Blocked,
	} {
		ch <- prometheus.MustNewConstMetric(c.tasksDesc, prometheus.GaugeValue, float64(n), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.overdue, prometheus.GaugeValue, float64(s.Overdue))
	ch <- prometheus.MustNewConstMetric(c.completion, prometheus.GaugeValue, float64(s.CompletionRate))
}
