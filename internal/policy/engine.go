// Package policy decides which matching environments are deleted and
// which are preserved.
package policy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/metrics"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/selector"
)

// BranchSource supplies the branch names that protect environments.
type BranchSource interface {
	// OpenPullRequestBranches returns the head branches of open pull
	// requests on the project's source host.
	OpenPullRequestBranches(ctx context.Context) ([]string, error)

	// LiveBranches returns the branches that still exist on the origin
	// remote after pruning.
	LiveBranches(ctx context.Context) ([]string, error)
}

// Engine applies a PreservationPolicy to a candidate list.
type Engine struct {
	source  BranchSource
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an Engine. source may be nil when no survival
// check is ever requested.
func NewEngine(source BranchSource, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{source: source, logger: logger, metrics: m}
}

// Select partitions candidates, which must be ordered oldest first, into
// environments to delete and to keep.
//
// An environment is preserved when its recovered branch name matches an
// open pull request or a live branch, for whichever checks the policy
// enables; both may be enabled at once. Of the rest, the Keep most
// recent are kept too. Failing to fetch branches is an error: the
// engine never assumes that nothing needs preserving.
func (e *Engine) Select(ctx context.Context, candidates []model.Environment, pattern string, policy model.PreservationPolicy) (model.DeletionCandidateSet, error) {
	if err := policy.Validate(); err != nil {
		return model.DeletionCandidateSet{}, err
	}
	re, err := selector.Compile(pattern)
	if err != nil {
		return model.DeletionCandidateSet{}, err
	}

	protected, err := e.protectedBranches(ctx, policy)
	if err != nil {
		return model.DeletionCandidateSet{}, err
	}

	keep := make(map[int]bool, len(candidates))
	var unpreserved []int
	for i, env := range candidates {
		recovered := RecoverBranch(re, env.ID)
		if branch, ok := matchingBranch(recovered, protected); ok {
			e.logger.Info("Preserving environment with an active branch",
				zap.String("environment", env.ID),
				zap.String("branch", branch),
			)
			keep[i] = true
			continue
		}
		unpreserved = append(unpreserved, i)
	}

	kept := policy.Keep
	if kept > len(unpreserved) {
		kept = len(unpreserved)
	}
	for _, i := range unpreserved[len(unpreserved)-kept:] {
		e.logger.Info("Keeping recent environment", zap.String("environment", candidates[i].ID))
		keep[i] = true
	}

	set := model.DeletionCandidateSet{
		ToDelete: []model.Environment{},
		ToKeep:   []model.Environment{},
	}
	for i, env := range candidates {
		if keep[i] {
			set.ToKeep = append(set.ToKeep, env)
		} else {
			set.ToDelete = append(set.ToDelete, env)
		}
	}

	e.metrics.RecordSelection(len(set.ToDelete), len(set.ToKeep))
	return set, nil
}

func (e *Engine) protectedBranches(ctx context.Context, policy model.PreservationPolicy) ([]string, error) {
	if !policy.PreservePRs && !policy.PreserveIfBranchExists {
		return nil, nil
	}
	if e.source == nil {
		return nil, fmt.Errorf("no branch source configured for preservation checks")
	}

	var branches []string
	if policy.PreservePRs {
		prs, err := e.source.OpenPullRequestBranches(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list open pull requests: %w", err)
		}
		e.logger.Debug("Open pull request branches", zap.Strings("branches", prs))
		branches = append(branches, prs...)
	}
	if policy.PreserveIfBranchExists {
		live, err := e.source.LiveBranches(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list live branches: %w", err)
		}
		e.logger.Debug("Live branches", zap.Strings("branches", live))
		branches = append(branches, live...)
	}
	return branches, nil
}
