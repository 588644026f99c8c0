package policy

import (
	"context"
	"fmt"

	"github.com/n3tuk/multidev-lifecycle/internal/sourcehost"
)

// PullRequestLister lists open pull request branches of a project.
type PullRequestLister interface {
	OpenPullRequestBranches(ctx context.Context, project string) ([]string, error)
}

// Checkout is the local working copy the branch checks read from.
type Checkout interface {
	RemoteURL(ctx context.Context, name string) (string, bool, error)
	PruneRemote(ctx context.Context, remote string) error
	RemoteBranches(ctx context.Context, remote string) ([]string, error)
}

// RepoBranchSource reads branches for the project checked out locally.
// The project on the source host is derived from the remote's URL.
type RepoBranchSource struct {
	PullRequests PullRequestLister
	Checkout     Checkout
	Remote       string
}

func (s RepoBranchSource) remote() string {
	if s.Remote == "" {
		return "origin"
	}
	return s.Remote
}

// Project returns "owner/name" of the checkout's remote.
func (s RepoBranchSource) Project(ctx context.Context) (string, error) {
	url, ok, err := s.Checkout.RemoteURL(ctx, s.remote())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no %s remote configured", s.remote())
	}
	return sourcehost.ProjectFromRemoteURL(url)
}

// OpenPullRequestBranches implements BranchSource.
func (s RepoBranchSource) OpenPullRequestBranches(ctx context.Context) ([]string, error) {
	if s.PullRequests == nil {
		return nil, fmt.Errorf("no source host client configured")
	}
	project, err := s.Project(ctx)
	if err != nil {
		return nil, err
	}
	return s.PullRequests.OpenPullRequestBranches(ctx, project)
}

// LiveBranches implements BranchSource.
func (s RepoBranchSource) LiveBranches(ctx context.Context) ([]string, error) {
	if err := s.Checkout.PruneRemote(ctx, s.remote()); err != nil {
		return nil, err
	}
	return s.Checkout.RemoteBranches(ctx, s.remote())
}
