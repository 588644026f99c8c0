package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testBuildInfo() map[string]string {
	return map[string]string{
		"version": "1.0.0",
		"commit":  "abc123",
		"date":    "2024-01-08",
	}
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test", testBuildInfo())

	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}

	if m.namespace != "test" {
		t.Errorf("namespace = %s, want test", m.namespace)
	}

	if m.registry == nil {
		t.Error("registry is nil")
	}

	// Test that app_start_time_seconds is set
	startTime := testutil.ToFloat64(m.AppStartTimeSeconds)
	if startTime == 0 {
		t.Error("app_start_time_seconds is 0")
	}
}

func TestMetricsRegistry(t *testing.T) {
	m := NewMetrics("test", testBuildInfo())
	registry := m.Registry()

	if registry == nil {
		t.Fatal("Registry() returned nil")
	}

	// Counter vectors only appear once a label set exists
	m.RecordEnvironmentOperation("delete", "success")

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := []string{
		"test_app_info",
		"test_app_start_time_seconds",
		"test_run_duration_seconds",
		"test_environment_operations_total",
	}

	foundMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundMetrics[*mf.Name] = true
	}

	for _, expected := range expectedMetrics {
		if !foundMetrics[expected] {
			t.Errorf("Expected metric %s not found in %v", expected, foundMetrics)
		}
	}
}

func TestRecordEnvironmentOperation(t *testing.T) {
	m := NewMetrics("test", testBuildInfo())

	m.RecordEnvironmentOperation("delete", "success")
	m.RecordEnvironmentOperation("delete", "success")
	m.RecordEnvironmentOperation("delete", "failure")

	if got := testutil.ToFloat64(m.EnvironmentOperationsTotal.WithLabelValues("delete", "success")); got != 2 {
		t.Errorf("delete/success = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.EnvironmentOperationsTotal.WithLabelValues("delete", "failure")); got != 1 {
		t.Errorf("delete/failure = %f, want 1", got)
	}
}

func TestRecordGitCommand(t *testing.T) {
	m := NewMetrics("test", testBuildInfo())

	m.RecordGitCommand("push", nil)
	m.RecordGitCommand("push", errors.New("exit status 1"))

	if got := testutil.ToFloat64(m.GitCommandsTotal.WithLabelValues("push", "success")); got != 1 {
		t.Errorf("push/success = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.GitCommandsTotal.WithLabelValues("push", "failure")); got != 1 {
		t.Errorf("push/failure = %f, want 1", got)
	}
}

func TestRecordWorkflowWait(t *testing.T) {
	m := NewMetrics("test", testBuildInfo())

	m.RecordWorkflowWait("succeeded", 12*time.Second)
	m.RecordWorkflowWait("timed_out", 60*time.Second)

	if got := testutil.ToFloat64(m.WorkflowWaitsTotal.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("succeeded = %f, want 1", got)
	}
	if got := testutil.CollectAndCount(m.WorkflowWaitDurationSeconds); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestRecordSelection(t *testing.T) {
	m := NewMetrics("test", testBuildInfo())

	m.RecordSelection(3, 2)

	if got := testutil.ToFloat64(m.DeletionCandidates.WithLabelValues("delete")); got != 3 {
		t.Errorf("delete = %f, want 3", got)
	}
	if got := testutil.ToFloat64(m.DeletionCandidates.WithLabelValues("keep")); got != 2 {
		t.Errorf("keep = %f, want 2", got)
	}
}

func TestNilMetricsRecorders(t *testing.T) {
	var m *Metrics

	// These should not panic
	m.RecordEnvironmentOperation("delete", "success")
	m.RecordGitCommand("push", nil)
	m.RecordWorkflowWait("succeeded", time.Second)
	m.RecordSelection(1, 1)
}

func TestMetricsCollectorRegistration(t *testing.T) {
	m1 := NewMetrics("test1", testBuildInfo())
	m2 := NewMetrics("test2", testBuildInfo())

	// Both should have their own registries
	if m1.Registry() == m2.Registry() {
		t.Error("Metrics instances share the same registry")
	}
}

func TestHistogramBuckets(t *testing.T) {
	m := NewMetrics("test", testBuildInfo())

	m.HTTPRequestDurationSeconds.WithLabelValues("api.example.com", "GET").Observe(0.01)
	m.HTTPRequestDurationSeconds.WithLabelValues("api.example.com", "GET").Observe(1.0)

	metricFamilies, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if *mf.Name == "test_http_request_duration_seconds" {
			found = true
			if mf.Type.String() != "HISTOGRAM" {
				t.Errorf("Metric type = %v, want HISTOGRAM", mf.Type.String())
			}
		}
	}

	if !found {
		t.Error("http_request_duration_seconds histogram not found")
	}
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics("test", testBuildInfo())
	m.RecordEnvironmentOperation("create", "success")
	m.Finish()

	path := filepath.Join(t.TempDir(), "multidev.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), `test_environment_operations_total{operation="create",status="success"} 1`) {
		t.Errorf("textfile missing operation counter:\n%s", data)
	}
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetrics("test", testBuildInfo())
	m.RecordEnvironmentOperation("push", "success")

	if err := m.Push(context.Background(), srv.URL, "multidev", map[string]string{"site": "example"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if gotPath != "/metrics/job/multidev/site/example" {
		t.Errorf("push path = %s", gotPath)
	}
	if gotBody == "" {
		t.Error("push body is empty")
	}
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewMetrics("test", testBuildInfo())
	if err := m.Push(context.Background(), srv.URL, "multidev", nil); err == nil {
		t.Error("Push() expected error on 500 response")
	}
}
