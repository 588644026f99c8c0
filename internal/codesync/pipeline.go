// Package codesync pushes build artifacts into a platform environment
// and keeps the push serialized with the platform's converge job.
package codesync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/gitcli"
	"github.com/n3tuk/multidev-lifecycle/internal/metrics"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/platform"
	"github.com/n3tuk/multidev-lifecycle/internal/workflow"
)

// DefaultRemote is the git remote name used for the platform endpoint.
const DefaultRemote = "pantheon"

// Platform is the part of the hosting API the pipeline uses.
type Platform interface {
	EnvironmentExists(ctx context.Context, site, env string) (bool, error)
	SetConnectionMode(ctx context.Context, site, env string, mode model.ConnectionMode) (model.ModeChange, error)
	ConnectionInfo(ctx context.Context, site, env string) (platform.ConnectionInfo, error)
}

// Waiter blocks on platform jobs.
type Waiter interface {
	Settle(ctx context.Context, change model.ModeChange) error
	Await(ctx context.Context, site, description string, notBefore time.Time, timeout time.Duration) (workflow.Outcome, error)
}

// MetadataStore captures and writes build metadata.
type MetadataStore interface {
	Capture(ctx context.Context, dir string) (*model.BuildMetadata, error)
	Persist(meta *model.BuildMetadata, dir string) error
}

// PushRequest describes one push of an artifact tree.
type PushRequest struct {
	// Site is the platform site name.
	Site string

	// Target is the environment to push to.
	Target string

	// Dir is the git working copy holding the cleaned artifact tree.
	Dir string

	// Label names the build in the commit message; defaults to Target.
	Label string

	// NewlyCreated is set when Target was created by the same
	// operation, in which case there is no converge job to wait for.
	NewlyCreated bool
}

// Config holds the pipeline settings.
type Config struct {
	// Remote is the git remote name for the platform endpoint.
	Remote string

	// ConvergeTimeout bounds the wait for the sync workflow.
	ConvergeTimeout time.Duration

	// GitOptions are applied to the working copy.
	GitOptions []gitcli.Option
}

// Pipeline runs the ordered push steps.
type Pipeline struct {
	platform Platform
	waiter   Waiter
	store    MetadataStore
	logger   *zap.Logger
	metrics  *metrics.Metrics
	cfg      Config
	steps    []Step
	now      func() time.Time
}

// New creates a Pipeline with the standard steps.
func New(p Platform, w Waiter, store MetadataStore, logger *zap.Logger, m *metrics.Metrics, cfg Config) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Remote == "" {
		cfg.Remote = DefaultRemote
	}
	if cfg.ConvergeTimeout <= 0 {
		cfg.ConvergeTimeout = workflow.DefaultTimeout
	}

	pl := &Pipeline{
		platform: p,
		waiter:   w,
		store:    store,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
	pl.steps = []Step{
		remoteStep{pl},
		metadataStep{pl},
		branchStep{pl},
		modeStep{pl},
		pushStep{pl},
		convergeStep{pl},
	}
	return pl
}

// Push stages, commits and force-pushes the artifact tree in req.Dir to
// the target environment. When the target already existed it returns
// only after the platform's sync workflow finished or the wait timed
// out, so the caller may change the connection mode afterwards.
//
// Any failing step aborts the push; rerunning it from scratch is safe.
func (p *Pipeline) Push(ctx context.Context, req PushRequest) (*model.BuildMetadata, error) {
	if req.Site == "" || req.Target == "" || req.Dir == "" {
		return nil, fmt.Errorf("push requires a site, target environment and directory")
	}
	if req.Label == "" {
		req.Label = req.Target
	}

	st := &state{
		req:    req,
		repo:   gitcli.NewRepository(req.Dir, p.cfg.GitOptions...),
		branch: model.BranchName(req.Target),
		log: p.logger.With(
			zap.String("site", req.Site),
			zap.String("environment", req.Target),
		),
	}

	st.log.Info("Pushing build artifacts", zap.String("branch", st.branch), zap.String("dir", req.Dir))

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.metrics.RecordEnvironmentOperation("push", "failure")
			return nil, err
		}

		st.log.Debug("Running push step", zap.String("step", step.Name()))
		if err := step.Run(ctx, st); err != nil {
			p.metrics.RecordEnvironmentOperation("push", "failure")
			return nil, fmt.Errorf("step %s: %w", step.Name(), err)
		}
	}

	p.metrics.RecordEnvironmentOperation("push", "success")
	st.log.Info("Pushed build artifacts", zap.String("sha", st.meta.SHA))
	return st.meta, nil
}
