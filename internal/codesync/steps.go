package codesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/gitcli"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/workflow"
)

// Step is one stage of a push.
type Step interface {
	Name() string
	Run(ctx context.Context, st *state) error
}

// state is carried between steps of one push.
type state struct {
	req    PushRequest
	repo   *gitcli.Repository
	branch string
	log    *zap.Logger

	meta      *model.BuildMetadata
	existed   bool
	notBefore time.Time
}

// remoteStep registers the platform git endpoint as a remote.
type remoteStep struct{ p *Pipeline }

func (remoteStep) Name() string { return "remote" }

func (s remoteStep) Run(ctx context.Context, st *state) error {
	info, err := s.p.platform.ConnectionInfo(ctx, st.req.Site, st.req.Target)
	if err != nil {
		return err
	}
	return st.repo.EnsureRemote(ctx, s.p.cfg.Remote, info.GitURL)
}

// metadataStep records what is being built inside the tree.
type metadataStep struct{ p *Pipeline }

func (metadataStep) Name() string { return "metadata" }

func (s metadataStep) Run(ctx context.Context, st *state) error {
	meta, err := s.p.store.Capture(ctx, st.req.Dir)
	if err != nil {
		return err
	}
	if err := s.p.store.Persist(meta, st.req.Dir); err != nil {
		return err
	}
	st.meta = meta
	return nil
}

// branchStep commits the whole tree onto the environment branch.
type branchStep struct{ p *Pipeline }

func (branchStep) Name() string { return "branch" }

func (s branchStep) Run(ctx context.Context, st *state) error {
	if err := st.repo.CheckoutBranch(ctx, st.branch); err != nil {
		return err
	}

	removed, err := RemoveNestedGitDirs(st.req.Dir)
	if err != nil {
		return err
	}
	for _, dir := range removed {
		st.log.Info("Removed nested git directory", zap.String("path", dir))
	}

	if err := st.repo.AddAll(ctx); err != nil {
		return err
	}
	return st.repo.Commit(ctx, fmt.Sprintf("Build assets for %s.", st.req.Label))
}

// modeStep switches a pre-existing environment to git mode.
type modeStep struct{ p *Pipeline }

func (modeStep) Name() string { return "mode" }

func (s modeStep) Run(ctx context.Context, st *state) error {
	if st.req.NewlyCreated {
		return nil
	}

	exists, err := s.p.platform.EnvironmentExists(ctx, st.req.Site, st.req.Target)
	if err != nil {
		return err
	}
	st.existed = exists
	if !exists {
		st.log.Info("Target environment does not exist yet, pushing a new branch")
		return nil
	}

	change, err := s.p.platform.SetConnectionMode(ctx, st.req.Site, st.req.Target, model.ModeGit)
	if err != nil {
		return err
	}
	return s.p.waiter.Settle(ctx, change)
}

// pushStep force-pushes the branch.
type pushStep struct{ p *Pipeline }

func (pushStep) Name() string { return "push" }

func (s pushStep) Run(ctx context.Context, st *state) error {
	st.notBefore = s.p.now()
	return st.repo.ForcePush(ctx, s.p.cfg.Remote, st.branch)
}

// convergeStep waits for the sync workflow the push triggered.
type convergeStep struct{ p *Pipeline }

func (convergeStep) Name() string { return "converge" }

func (s convergeStep) Run(ctx context.Context, st *state) error {
	if !st.existed {
		return nil
	}

	outcome, err := s.p.waiter.Await(ctx, st.req.Site, model.SyncCodeDescription(st.req.Target),
		st.notBefore, s.p.cfg.ConvergeTimeout)
	if err != nil {
		return err
	}
	if outcome == workflow.OutcomeTimedOut {
		st.log.Warn("Code sync did not finish in time, continuing")
	}
	return nil
}

// RemoveNestedGitDirs deletes every .git entry below root, leaving the
// root's own .git alone. Nested repositories in an artifact tree would
// otherwise be committed as broken gitlinks.
func RemoveNestedGitDirs(root string) ([]string, error) {
	var nested []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Name() != ".git" {
			return nil
		}
		if filepath.Dir(path) == filepath.Clean(root) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		nested = append(nested, path)
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s for nested git directories: %w", root, err)
	}

	var errs []error
	for _, path := range nested {
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
		}
	}
	return nested, errors.Join(errs...)
}
