// Package workflow waits on the hosting platform's asynchronous jobs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/metrics"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/platform"
)

// Default polling settings.
const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 60 * time.Second
)

// Outcome is the result of waiting on a workflow.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// FailedError is returned when the awaited workflow failed.
type FailedError struct {
	Description string
	Message     string
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("workflow %q failed", e.Description)
	}
	return fmt.Sprintf("workflow %q failed: %s", e.Description, e.Message)
}

// Source is the part of the platform API the coordinator polls.
type Source interface {
	LatestWorkflow(ctx context.Context, site string) (model.Workflow, error)
	GetWorkflow(ctx context.Context, site, id string) (model.Workflow, error)
}

// Coordinator polls platform workflows until they finish.
type Coordinator struct {
	source  Source
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Interval is the delay between polls.
	Interval time.Duration

	// Timeout is the default bound for Await when none is given.
	Timeout time.Duration

	now func() time.Time
}

// NewCoordinator creates a coordinator with the default interval and
// timeout. m may be nil.
func NewCoordinator(source Source, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		source:   source,
		logger:   logger,
		metrics:  m,
		Interval: DefaultInterval,
		Timeout:  DefaultTimeout,
		now:      time.Now,
	}
}

// Await waits for the workflow with the given description created after
// notBefore. A zero timeout uses c.Timeout. Running out of time is not
// an error: it returns OutcomeTimedOut so that callers can carry on,
// as the platform converges on its own.
func (c *Coordinator) Await(ctx context.Context, site, description string, notBefore time.Time, timeout time.Duration) (Outcome, error) {
	return c.AwaitMatch(ctx, site, DescriptionCorrelator{Description: description, NotBefore: notBefore}, timeout)
}

// AwaitMatch is Await with an explicit correlation strategy.
func (c *Coordinator) AwaitMatch(ctx context.Context, site string, match Correlator, timeout time.Duration) (Outcome, error) {
	if timeout <= 0 {
		timeout = c.Timeout
	}
	start := c.now()
	deadline := start.Add(timeout)

	log := c.logger.With(zap.String("site", site), zap.Stringer("workflow", match))
	log.Info("Waiting for workflow", zap.Duration("timeout", timeout))

	var tracked string
	for {
		wf, err := c.poll(ctx, site, tracked)
		switch {
		case errors.Is(err, platform.ErrNoWorkflows):
			log.Info("No workflows found yet")
		case err != nil:
			return "", err
		case tracked != "" || match.Matches(wf):
			tracked = wf.ID
			switch wf.Status {
			case model.WorkflowSucceeded:
				c.finish(log, OutcomeSucceeded, start)
				return OutcomeSucceeded, nil
			case model.WorkflowFailed:
				c.finish(log, OutcomeFailed, start)
				return OutcomeFailed, &FailedError{Description: wf.Description, Message: wf.Message}
			default:
				log.Info("Workflow is still running", zap.String("id", wf.ID))
			}
		default:
			log.Info("Latest workflow does not match yet",
				zap.String("latest", wf.Description),
				zap.Time("created_at", wf.CreatedAt),
			)
		}

		if !c.now().Before(deadline) {
			c.finish(log, OutcomeTimedOut, start)
			return OutcomeTimedOut, nil
		}
		if err := sleep(ctx, c.Interval); err != nil {
			return "", err
		}
	}
}

func (c *Coordinator) poll(ctx context.Context, site, id string) (model.Workflow, error) {
	if id != "" {
		return c.source.GetWorkflow(ctx, site, id)
	}
	return c.source.LatestWorkflow(ctx, site)
}

func (c *Coordinator) finish(log *zap.Logger, outcome Outcome, start time.Time) {
	elapsed := c.now().Sub(start)
	c.metrics.RecordWorkflowWait(string(outcome), elapsed)

	switch outcome {
	case OutcomeTimedOut:
		log.Warn("Timed out waiting for workflow, continuing", zap.Duration("elapsed", elapsed))
	case OutcomeFailed:
		log.Error("Workflow failed", zap.Duration("elapsed", elapsed))
	default:
		log.Info("Workflow succeeded", zap.Duration("elapsed", elapsed))
	}
}

// WaitForProgress polls handle until it reports completion. It has no
// bound of its own; cancel ctx to give up.
func (c *Coordinator) WaitForProgress(ctx context.Context, handle model.ProgressHandle) error {
	start := c.now()
	log := c.logger.With(zap.String("workflow", handle.Description()))
	log.Debug("Waiting for workflow to finish")

	for {
		done, err := handle.Poll(ctx)
		if done {
			outcome := OutcomeSucceeded
			if err != nil {
				outcome = OutcomeFailed
			}
			c.finish(log, outcome, start)
			return err
		}
		if err != nil {
			return fmt.Errorf("polling workflow %q: %w", handle.Description(), err)
		}
		if err := sleep(ctx, c.Interval); err != nil {
			return err
		}
	}
}

// Settle resolves the result of a mode change, waiting on it when the
// platform started a job.
func (c *Coordinator) Settle(ctx context.Context, change model.ModeChange) error {
	switch v := change.(type) {
	case model.AlreadyComplete:
		c.logger.Info(v.Message)
		return nil
	case model.InProgress:
		return c.WaitForProgress(ctx, v.Handle)
	default:
		return fmt.Errorf("unexpected mode change result %T", change)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
