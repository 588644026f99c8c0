package metrics

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for a single invocation. A CLI
// run is too short-lived to be scraped, so the registry is exported at
// exit through a Pushgateway or a node-exporter textfile.
type Metrics struct {
	namespace string

	// Application metrics
	AppInfo             *prometheus.GaugeVec
	AppStartTimeSeconds prometheus.Gauge
	RunDurationSeconds  prometheus.Gauge

	// Outbound HTTP metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	// Local command metrics
	GitCommandsTotal *prometheus.CounterVec

	// Workflow metrics
	WorkflowWaitsTotal          *prometheus.CounterVec
	WorkflowWaitDurationSeconds prometheus.Histogram

	// Environment operation metrics
	EnvironmentOperationsTotal *prometheus.CounterVec
	DeletionCandidates         *prometheus.GaugeVec

	registry *prometheus.Registry
	started  time.Time
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string, buildInfo map[string]string) *Metrics {
	m := &Metrics{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
		started:   time.Now(),
	}

	// Application metrics
	m.AppInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "app_info",
			Help:      "Application build information",
		},
		[]string{"version", "commit", "build_date", "go_version"},
	)

	m.AppStartTimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "app_start_time_seconds",
			Help:      "Unix timestamp of the invocation start",
		},
	)

	m.RunDurationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the invocation",
		},
	)

	// Outbound HTTP metrics
	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of outbound API requests",
		},
		[]string{"host", "method", "status"},
	)

	m.HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Outbound API request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"host", "method"},
	)

	m.GitCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "git_commands_total",
			Help:      "Total number of git commands by subcommand and status",
		},
		[]string{"subcommand", "status"},
	)

	m.WorkflowWaitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_waits_total",
			Help:      "Total number of workflow waits by outcome",
		},
		[]string{"outcome"},
	)

	m.WorkflowWaitDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_wait_duration_seconds",
			Help:      "Time spent waiting on platform workflows",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 120, 300, 600},
		},
	)

	m.EnvironmentOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "environment_operations_total",
			Help:      "Total number of environment operations by operation type and status",
		},
		[]string{"operation", "status"},
	)

	m.DeletionCandidates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deletion_candidates",
			Help:      "Number of environments in each partition of the last deletion selection",
		},
		[]string{"partition"},
	)

	// Register all metrics
	m.register()

	// Set initial values
	m.AppInfo.WithLabelValues(
		buildInfo["version"],
		buildInfo["commit"],
		buildInfo["date"],
		runtime.Version(),
	).Set(1)

	m.AppStartTimeSeconds.Set(float64(m.started.Unix()))

	return m
}

// register registers all metrics with the registry.
func (m *Metrics) register() {
	m.registry.MustRegister(
		m.AppInfo,
		m.AppStartTimeSeconds,
		m.RunDurationSeconds,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.GitCommandsTotal,
		m.WorkflowWaitsTotal,
		m.WorkflowWaitDurationSeconds,
		m.EnvironmentOperationsTotal,
		m.DeletionCandidates,
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordEnvironmentOperation counts an operation on an environment.
// It is safe to call on a nil receiver.
func (m *Metrics) RecordEnvironmentOperation(operation, status string) {
	if m != nil && m.EnvironmentOperationsTotal != nil {
		m.EnvironmentOperationsTotal.WithLabelValues(operation, status).Inc()
	}
}

// RecordGitCommand counts a git invocation. It is safe to call on a nil
// receiver.
func (m *Metrics) RecordGitCommand(subcommand string, err error) {
	if m == nil || m.GitCommandsTotal == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.GitCommandsTotal.WithLabelValues(subcommand, status).Inc()
}

// RecordWorkflowWait records the outcome and duration of a workflow wait.
// It is safe to call on a nil receiver.
func (m *Metrics) RecordWorkflowWait(outcome string, d time.Duration) {
	if m == nil || m.WorkflowWaitsTotal == nil {
		return
	}
	m.WorkflowWaitsTotal.WithLabelValues(outcome).Inc()
	m.WorkflowWaitDurationSeconds.Observe(d.Seconds())
}

// RecordSelection sets the partition sizes of a deletion selection.
// It is safe to call on a nil receiver.
func (m *Metrics) RecordSelection(toDelete, toKeep int) {
	if m == nil || m.DeletionCandidates == nil {
		return
	}
	m.DeletionCandidates.WithLabelValues("delete").Set(float64(toDelete))
	m.DeletionCandidates.WithLabelValues("keep").Set(float64(toKeep))
}

// Finish stamps the run duration. Call it before exporting.
func (m *Metrics) Finish() {
	m.RunDurationSeconds.Set(time.Since(m.started).Seconds())
}

// Push sends the registry to a Prometheus Pushgateway under the given
// job name, replacing any previous group for that job.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string, grouping map[string]string) error {
	pusher := push.New(gatewayURL, job).Gatherer(m.registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// WriteTextfile writes the registry in the text exposition format,
// atomically, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
