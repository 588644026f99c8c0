package gitcli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n3tuk/multidev-lifecycle/internal/gitcli/gittest"
)

func TestRunCommandError(t *testing.T) {
	dir := gittest.NewRepo(t)
	repo := NewRepository(dir)

	_, err := repo.Run(context.Background(), "rev-parse", "does-not-exist")
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.NotZero(t, cmdErr.ExitCode)
	assert.Equal(t, dir, cmdErr.Dir)
	assert.Contains(t, cmdErr.Error(), "git rev-parse does-not-exist")
	assert.True(t, IsCommandError(err))
}

func TestRecorder(t *testing.T) {
	dir := gittest.NewRepo(t)

	var calls []string
	var failures int
	repo := NewRepository(dir, WithRecorder(func(sub string, err error) {
		calls = append(calls, sub)
		if err != nil {
			failures++
		}
	}))

	_, _ = repo.HeadSHA(context.Background())
	_, _ = repo.Run(context.Background(), "checkout", "no-such-branch")

	assert.Equal(t, []string{"rev-parse", "checkout"}, calls)
	assert.Equal(t, 1, failures)
}

func TestHeadInformation(t *testing.T) {
	dir := gittest.NewRepo(t)
	repo := NewRepository(dir)
	ctx := context.Background()

	branch, err := repo.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	sha, err := repo.HeadSHA(ctx)
	require.NoError(t, err)
	assert.Len(t, sha, 40)

	subject, err := repo.HeadSubject(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Initial commit", subject)

	date, err := repo.HeadCommitDate(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} [+-]\d{4}$`, date)
}

func TestRemoteURLOrigin(t *testing.T) {
	dir := gittest.NewRepo(t)
	repo := NewRepository(dir)
	ctx := context.Background()

	_, exists, err := repo.RemoteURL(ctx, "origin")
	require.NoError(t, err)
	assert.False(t, exists, "a fresh repository has no origin")

	gittest.Git(t, dir, "remote", "add", "origin", "git@github.com:example/site.git")

	url, exists, err := repo.RemoteURL(ctx, "origin")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "git@github.com:example/site.git", url)
}

func TestEnsureRemoteIsIdempotent(t *testing.T) {
	dir := gittest.NewRepo(t)
	repo := NewRepository(dir)
	ctx := context.Background()

	_, exists, err := repo.RemoteURL(ctx, "pantheon")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.EnsureRemote(ctx, "pantheon", "ssh://one.example.com/repo.git"))
	require.NoError(t, repo.EnsureRemote(ctx, "pantheon", "ssh://one.example.com/repo.git"))

	url, exists, err := repo.RemoteURL(ctx, "pantheon")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "ssh://one.example.com/repo.git", url)

	require.NoError(t, repo.EnsureRemote(ctx, "pantheon", "ssh://two.example.com/repo.git"))
	url, _, err = repo.RemoteURL(ctx, "pantheon")
	require.NoError(t, err)
	assert.Equal(t, "ssh://two.example.com/repo.git", url)
}

func TestCommitAndForcePush(t *testing.T) {
	dir := gittest.NewRepo(t)
	remote := gittest.NewBareRemote(t)
	repo := NewRepository(dir)
	ctx := context.Background()

	require.NoError(t, repo.EnsureRemote(ctx, "pantheon", remote))
	require.NoError(t, repo.CheckoutBranch(ctx, "ci-1"))
	gittest.WriteFile(t, dir, "vendor/lib.php", "<?php\n")
	require.NoError(t, repo.AddAll(ctx))
	require.NoError(t, repo.Commit(ctx, "Build assets for ci-1."))
	require.NoError(t, repo.ForcePush(ctx, "pantheon", "ci-1"))

	local, err := repo.HeadSHA(ctx)
	require.NoError(t, err)
	pushed := gittest.Git(t, remote, "rev-parse", "ci-1")
	assert.Equal(t, local, pushed)
}

func TestRemoteBranches(t *testing.T) {
	upstream := gittest.NewRepo(t)
	gittest.Git(t, upstream, "branch", "feature-login")
	gittest.Git(t, upstream, "branch", "doomed")

	dir := gittest.NewRepo(t)
	gittest.Git(t, dir, "remote", "add", "origin", upstream)
	repo := NewRepository(dir)
	ctx := context.Background()

	require.NoError(t, repo.PruneRemote(ctx, "origin"))
	branches, err := repo.RemoteBranches(ctx, "origin")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "feature-login", "doomed"}, branches)

	gittest.Git(t, upstream, "branch", "-D", "doomed")
	require.NoError(t, repo.PruneRemote(ctx, "origin"))
	branches, err = repo.RemoteBranches(ctx, "origin")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "feature-login"}, branches)
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitLines("a\n\n  b  \n"))
	assert.Nil(t, splitLines(""))
}
