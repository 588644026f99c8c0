package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n3tuk/multidev-lifecycle/internal/metrics"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/platform"
)

// scriptedSource returns the next scripted response on each call.
type scriptedSource struct {
	mu      sync.Mutex
	latest  []result
	byID    []result
	latestN int
	byIDN   int
}

type result struct {
	wf  model.Workflow
	err error
}

func next(results []result, n int) (model.Workflow, error) {
	if len(results) == 0 {
		return model.Workflow{}, errors.New("no scripted response")
	}
	if n >= len(results) {
		n = len(results) - 1
	}
	return results[n].wf, results[n].err
}

func (s *scriptedSource) LatestWorkflow(ctx context.Context, site string) (model.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, err := next(s.latest, s.latestN)
	s.latestN++
	return wf, err
}

func (s *scriptedSource) GetWorkflow(ctx context.Context, site, id string) (model.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, err := next(s.byID, s.byIDN)
	s.byIDN++
	return wf, err
}

func newTestCoordinator(src Source, m *metrics.Metrics) *Coordinator {
	c := NewCoordinator(src, nil, m)
	c.Interval = time.Millisecond
	c.Timeout = 50 * time.Millisecond
	return c
}

var notBefore = time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)

func syncWorkflow(status model.WorkflowStatus, created time.Time) model.Workflow {
	return model.Workflow{
		ID:          "wf-sync",
		Description: model.SyncCodeDescription("ci-foo"),
		CreatedAt:   created,
		Status:      status,
	}
}

func TestAwaitSucceeded(t *testing.T) {
	m := metrics.NewMetrics("test", nil)
	src := &scriptedSource{
		latest: []result{
			{wf: model.Workflow{ID: "old", Description: "Deploy", CreatedAt: notBefore.Add(-time.Minute)}},
			{wf: syncWorkflow(model.WorkflowRunning, notBefore.Add(time.Second))},
		},
		byID: []result{
			{wf: syncWorkflow(model.WorkflowRunning, notBefore.Add(time.Second))},
			{wf: syncWorkflow(model.WorkflowSucceeded, notBefore.Add(time.Second))},
		},
	}
	c := newTestCoordinator(src, m)
	c.Timeout = time.Minute

	outcome, err := c.Await(context.Background(), "example", model.SyncCodeDescription("ci-foo"), notBefore, 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Equal(t, 2, src.latestN, "should switch to tracking by id once matched")
	assert.Equal(t, 2, src.byIDN)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WorkflowWaitsTotal.WithLabelValues("succeeded")))
}

func TestAwaitFailed(t *testing.T) {
	failed := syncWorkflow(model.WorkflowFailed, notBefore.Add(time.Second))
	failed.Message = "Conflict in settings.php"
	src := &scriptedSource{latest: []result{{wf: failed}}}

	outcome, err := newTestCoordinator(src, nil).Await(context.Background(), "example", failed.Description, notBefore, 0)
	assert.Equal(t, OutcomeFailed, outcome)

	var failedErr *FailedError
	require.ErrorAs(t, err, &failedErr)
	assert.Equal(t, "Conflict in settings.php", failedErr.Message)
	assert.Contains(t, err.Error(), `Sync code on \"ci-foo\"`)
}

func TestAwaitTimesOutWithoutError(t *testing.T) {
	m := metrics.NewMetrics("test", nil)
	// Created exactly at notBefore, so it never correlates.
	src := &scriptedSource{latest: []result{{wf: syncWorkflow(model.WorkflowSucceeded, notBefore)}}}

	outcome, err := newTestCoordinator(src, m).Await(context.Background(), "example",
		model.SyncCodeDescription("ci-foo"), notBefore, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.Greater(t, src.latestN, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WorkflowWaitsTotal.WithLabelValues("timed_out")))
}

func TestAwaitNoWorkflowsYet(t *testing.T) {
	src := &scriptedSource{
		latest: []result{
			{err: platform.ErrNoWorkflows},
			{wf: syncWorkflow(model.WorkflowSucceeded, notBefore.Add(time.Second))},
		},
	}

	outcome, err := newTestCoordinator(src, nil).Await(context.Background(), "example",
		model.SyncCodeDescription("ci-foo"), notBefore, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
}

func TestAwaitAPIError(t *testing.T) {
	apiErr := &platform.APIError{StatusCode: 500, Message: "internal"}
	src := &scriptedSource{latest: []result{{err: apiErr}}}

	_, err := newTestCoordinator(src, nil).Await(context.Background(), "example", "x", notBefore, 0)
	assert.ErrorIs(t, err, apiErr)
}

func TestAwaitCancelled(t *testing.T) {
	src := &scriptedSource{latest: []result{{wf: model.Workflow{Description: "Deploy"}}}}
	c := newTestCoordinator(src, nil)
	c.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := c.Await(ctx, "example", "x", notBefore, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDescriptionCorrelator(t *testing.T) {
	c := DescriptionCorrelator{Description: `Sync code on "ci-foo"`, NotBefore: notBefore}

	tests := []struct {
		name string
		wf   model.Workflow
		want bool
	}{
		{name: "match", wf: model.Workflow{Description: `Sync code on "ci-foo"`, CreatedAt: notBefore.Add(time.Millisecond)}, want: true},
		{name: "same instant", wf: model.Workflow{Description: `Sync code on "ci-foo"`, CreatedAt: notBefore}},
		{name: "earlier", wf: model.Workflow{Description: `Sync code on "ci-foo"`, CreatedAt: notBefore.Add(-time.Second)}},
		{name: "other environment", wf: model.Workflow{Description: `Sync code on "ci-bar"`, CreatedAt: notBefore.Add(time.Second)}},
		{name: "case differs", wf: model.Workflow{Description: `sync code on "ci-foo"`, CreatedAt: notBefore.Add(time.Second)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Matches(tt.wf))
		})
	}
}

// fakeHandle completes after a number of polls.
type fakeHandle struct {
	polls   int
	after   int
	failErr error
}

func (h *fakeHandle) Poll(ctx context.Context) (bool, error) {
	h.polls++
	if h.polls < h.after {
		return false, nil
	}
	return true, h.failErr
}

func (h *fakeHandle) Description() string { return "Create ci-foo" }

func TestWaitForProgress(t *testing.T) {
	h := &fakeHandle{after: 3}
	require.NoError(t, newTestCoordinator(nil, nil).WaitForProgress(context.Background(), h))
	assert.Equal(t, 3, h.polls)
}

func TestWaitForProgressFailure(t *testing.T) {
	boom := errors.New("boom")
	h := &fakeHandle{after: 1, failErr: boom}
	assert.ErrorIs(t, newTestCoordinator(nil, nil).WaitForProgress(context.Background(), h), boom)
}

func TestWaitForProgressCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &fakeHandle{after: 100}
	assert.ErrorIs(t, newTestCoordinator(nil, nil).WaitForProgress(ctx, h), context.Canceled)
	assert.Equal(t, 1, h.polls)
}

func TestSettle(t *testing.T) {
	c := newTestCoordinator(nil, nil)

	require.NoError(t, c.Settle(context.Background(), model.AlreadyComplete{Message: "already git"}))

	h := &fakeHandle{after: 2}
	require.NoError(t, c.Settle(context.Background(), model.InProgress{Handle: h}))
	assert.Equal(t, 2, h.polls)

	assert.Error(t, c.Settle(context.Background(), nil))
}
