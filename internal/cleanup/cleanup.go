// Package cleanup deletes the transient environments of a site that
// the preservation policy does not protect.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/metadata"
	"github.com/n3tuk/multidev-lifecycle/internal/metrics"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/platform"
	"github.com/n3tuk/multidev-lifecycle/internal/policy"
	"github.com/n3tuk/multidev-lifecycle/internal/selector"
)

// DefaultPattern matches environments created by CI builds.
const DefaultPattern = "^ci-"

// Candidates lists the environments eligible for deletion.
type Candidates interface {
	OldestMatching(ctx context.Context, site, pattern string) ([]model.Environment, error)
}

// Policy partitions the candidates.
type Policy interface {
	Select(ctx context.Context, candidates []model.Environment, pattern string, p model.PreservationPolicy) (model.DeletionCandidateSet, error)
}

// Platform deletes environments.
type Platform interface {
	DeleteEnvironment(ctx context.Context, site, env string, deleteBranch bool) (model.ProgressHandle, error)
}

// Waiter blocks until a platform job finishes.
type Waiter interface {
	WaitForProgress(ctx context.Context, handle model.ProgressHandle) error
}

// Confirmer asks the operator before anything is deleted.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// MetadataFetcher reads the build metadata deployed on an environment.
type MetadataFetcher interface {
	Fetch(ctx context.Context, target model.SiteEnv) (*model.BuildMetadata, error)
}

// Request describes one deletion run.
type Request struct {
	Site    string
	Pattern string
	Policy  model.PreservationPolicy

	// DryRun computes and reports the partition without prompting or
	// deleting anything.
	DryRun bool

	// Yes skips the confirmation prompt.
	Yes bool

	// Inspect fetches the build metadata of each environment about to
	// be deleted and reports when it was built from a branch other than
	// the one its name suggests.
	Inspect bool
}

// Result reports what a run selected and did.
type Result struct {
	Set      model.DeletionCandidateSet
	DryRun   bool
	Declined bool
	Deleted  []string
	Skipped  []string
	Builds   map[string]*model.BuildMetadata
}

// Deleter runs deletions.
type Deleter struct {
	candidates Candidates
	policy     Policy
	platform   Platform
	waiter     Waiter
	confirmer  Confirmer
	fetcher    MetadataFetcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// Deps groups the collaborators of a Deleter. Fetcher is optional and
// only used for inspection.
type Deps struct {
	Candidates Candidates
	Policy     Policy
	Platform   Platform
	Waiter     Waiter
	Confirmer  Confirmer
	Fetcher    MetadataFetcher
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// New creates a Deleter.
func New(deps Deps) *Deleter {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deleter{
		candidates: deps.Candidates,
		policy:     deps.Policy,
		platform:   deps.Platform,
		waiter:     deps.Waiter,
		confirmer:  deps.Confirmer,
		fetcher:    deps.Fetcher,
		logger:     logger,
		metrics:    deps.Metrics,
	}
}

// Run selects the environments to delete and, unless this is a dry run
// or the operator declines, deletes them one by one, waiting for each.
//
// The selection is a snapshot. An environment that has disappeared by
// the time it is deleted is skipped; any other per-environment failure
// is collected and the remaining deletions still run.
func (d *Deleter) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Pattern == "" {
		req.Pattern = DefaultPattern
	}
	log := d.logger.With(zap.String("site", req.Site), zap.String("pattern", req.Pattern))

	candidates, err := d.candidates.OldestMatching(ctx, req.Site, req.Pattern)
	if err != nil {
		return nil, err
	}

	set, err := d.policy.Select(ctx, candidates, req.Pattern, req.Policy)
	if err != nil {
		return nil, err
	}

	result := &Result{Set: set, DryRun: req.DryRun}
	log.Info("Selected environments for deletion",
		zap.Strings("delete", set.DeleteIDs()),
		zap.Strings("keep", set.KeepIDs()),
		zap.Bool("dry_run", req.DryRun),
	)

	if req.Inspect && d.fetcher != nil {
		result.Builds = d.inspect(ctx, log, req, set.ToDelete)
	}

	if req.DryRun || len(set.ToDelete) == 0 {
		return result, nil
	}

	if !req.Yes {
		if d.confirmer == nil {
			return result, fmt.Errorf("confirmation required: rerun with --yes to delete without prompting")
		}
		msg := fmt.Sprintf("Delete %d environment(s) from %s: %s?",
			len(set.ToDelete), req.Site, strings.Join(set.DeleteIDs(), ", "))
		ok, err := d.confirmer.Confirm(ctx, msg)
		if err != nil {
			return result, err
		}
		if !ok {
			log.Info("Deletion declined")
			result.Declined = true
			return result, nil
		}
	}

	var errs []error
	for _, env := range set.ToDelete {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		err := d.delete(ctx, req.Site, env.ID, req.Policy.DeleteBranch)
		switch {
		case platform.IsNotFound(err):
			log.Warn("Environment already gone, skipping", zap.String("environment", env.ID))
			d.metrics.RecordEnvironmentOperation("delete", "skipped")
			result.Skipped = append(result.Skipped, env.ID)
		case err != nil:
			log.Error("Failed to delete environment", zap.String("environment", env.ID), zap.Error(err))
			d.metrics.RecordEnvironmentOperation("delete", "failure")
			errs = append(errs, fmt.Errorf("deleting %s: %w", env.ID, err))
		default:
			log.Info("Deleted environment", zap.String("environment", env.ID))
			d.metrics.RecordEnvironmentOperation("delete", "success")
			result.Deleted = append(result.Deleted, env.ID)
		}
	}

	return result, errors.Join(errs...)
}

func (d *Deleter) delete(ctx context.Context, site, env string, deleteBranch bool) error {
	handle, err := d.platform.DeleteEnvironment(ctx, site, env, deleteBranch)
	if err != nil {
		return err
	}
	return d.waiter.WaitForProgress(ctx, handle)
}

// inspect fetches deployed metadata for envs, one environment at a time.
// Missing metadata is expected for environments that were never built
// into. Inspection failures are logged and never abort the run.
func (d *Deleter) inspect(ctx context.Context, log *zap.Logger, req Request, envs []model.Environment) map[string]*model.BuildMetadata {
	re, err := selector.Compile(req.Pattern)
	if err != nil {
		return nil
	}

	builds := make(map[string]*model.BuildMetadata, len(envs))
	for _, env := range envs {
		if ctx.Err() != nil {
			break
		}

		meta, err := d.fetcher.Fetch(ctx, model.SiteEnv{Site: req.Site, Env: env.ID})
		switch {
		case errors.Is(err, metadata.ErrNotFound):
			log.Debug("No build metadata", zap.String("environment", env.ID))
			continue
		case err != nil:
			log.Warn("Could not inspect environment", zap.String("environment", env.ID), zap.Error(err))
			continue
		}

		builds[env.ID] = meta
		if mismatched(re, env.ID, meta) {
			log.Info("Environment was built from a branch its name does not match",
				zap.String("environment", env.ID),
				zap.String("ref", meta.Ref),
				zap.String("sha", meta.SHA),
			)
		}
	}
	return builds
}

func mismatched(re *regexp.Regexp, id string, meta *model.BuildMetadata) bool {
	recovered := policy.RecoverBranch(re, id)
	if recovered == "" || meta.Ref == "" || meta.Ref == model.MasterBranch {
		return false
	}
	return !policy.MatchesBranch(recovered, []string{meta.Ref})
}
