package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n3tuk/multidev-lifecycle/internal/gitcli"
	"github.com/n3tuk/multidev-lifecycle/internal/gitcli/gittest"
)

type fakeCheckout struct {
	url string
}

func (f fakeCheckout) RemoteURL(ctx context.Context, name string) (string, bool, error) {
	return f.url, f.url != "", nil
}

func (fakeCheckout) PruneRemote(ctx context.Context, remote string) error { return nil }

func (fakeCheckout) RemoteBranches(ctx context.Context, remote string) ([]string, error) {
	return nil, nil
}

type fakePRLister struct {
	project string
}

func (f *fakePRLister) OpenPullRequestBranches(ctx context.Context, project string) ([]string, error) {
	f.project = project
	return []string{"foo"}, nil
}

func TestRepoBranchSourcePullRequests(t *testing.T) {
	lister := &fakePRLister{}
	src := RepoBranchSource{PullRequests: lister, Checkout: fakeCheckout{url: "git@github.com:example/site.git"}}

	branches, err := src.OpenPullRequestBranches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, branches)
	assert.Equal(t, "example/site", lister.project)
}

func TestRepoBranchSourceNoRemote(t *testing.T) {
	src := RepoBranchSource{PullRequests: &fakePRLister{}, Checkout: fakeCheckout{}}
	_, err := src.OpenPullRequestBranches(context.Background())
	assert.Error(t, err)
}

func TestRepoBranchSourceLiveBranches(t *testing.T) {
	upstream := gittest.NewRepo(t)
	gittest.Git(t, upstream, "branch", "foo")
	gittest.Git(t, upstream, "branch", "gone")

	clone := t.TempDir()
	gittest.Git(t, clone, "clone", "-q", upstream, ".")
	gittest.Git(t, upstream, "branch", "-D", "gone")

	src := RepoBranchSource{Checkout: gitcli.NewRepository(clone)}
	branches, err := src.LiveBranches(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"foo", "main"}, branches)
}
