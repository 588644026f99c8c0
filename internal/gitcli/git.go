// Package gitcli provides typed access to the git CLI. Every command
// targets a specific working copy through "git -C <dir>"; a non-zero
// exit status is always returned as a *CommandError and never retried.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CommandError describes a git invocation that exited non-zero.
type CommandError struct {
	Args     []string
	Dir      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s in %s: exit code %d", strings.Join(e.Args, " "), e.Dir, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsCommandError reports whether err is a failed git command.
func IsCommandError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

// Recorder observes every git invocation, e.g. to count it in metrics.
type Recorder func(subcommand string, err error)

// Repository is a git working copy at a specific directory.
type Repository struct {
	dir      string
	logger   *zap.Logger
	recorder Recorder
}

// Option customises a Repository.
type Option func(*Repository)

// WithLogger sets the logger used for command tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorder sets a hook called after every command.
func WithRecorder(recorder Recorder) Option {
	return func(r *Repository) {
		r.recorder = recorder
	}
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string, opts ...Option) *Repository {
	r := &Repository{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command against the repository and returns its
// trimmed stdout.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Prevent git from prompting for credentials interactively.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	r.logger.Debug("Running git command", zap.Strings("args", args), zap.String("dir", r.dir))

	err := cmd.Run()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		err = &CommandError{
			Args:     args,
			Dir:      r.dir,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	if r.recorder != nil && len(args) > 0 {
		r.recorder(args[0], err)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Init creates an empty repository in the directory.
func (r *Repository) Init(ctx context.Context) error {
	_, err := r.Run(ctx, "init", "-q")
	return err
}

// RemoteURL returns the URL of the named remote. The second return
// value is false when the remote does not exist.
func (r *Repository) RemoteURL(ctx context.Context, name string) (string, bool, error) {
	names, err := r.Remotes(ctx)
	if err != nil {
		return "", false, err
	}
	for _, n := range names {
		if n == name {
			url, err := r.Run(ctx, "remote", "get-url", name)
			if err != nil {
				return "", false, err
			}
			return url, true, nil
		}
	}
	return "", false, nil
}

// Remotes lists the configured remote names.
func (r *Repository) Remotes(ctx context.Context) ([]string, error) {
	out, err := r.Run(ctx, "remote")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// EnsureRemote makes sure a remote called name points at url. It adds
// the remote when missing and corrects the URL when it differs, so it
// is safe to call on a working copy restored from a CI cache.
func (r *Repository) EnsureRemote(ctx context.Context, name, url string) error {
	current, exists, err := r.RemoteURL(ctx, name)
	if err != nil {
		return err
	}
	switch {
	case !exists:
		_, err = r.Run(ctx, "remote", "add", name, url)
	case current != url:
		_, err = r.Run(ctx, "remote", "set-url", name, url)
	}
	return err
}

// CheckoutBranch creates or resets branch to the current HEAD and
// checks it out.
func (r *Repository) CheckoutBranch(ctx context.Context, branch string) error {
	_, err := r.Run(ctx, "checkout", "-q", "-B", branch)
	return err
}

// AddAll stages every file in the tree, including ignored ones.
func (r *Repository) AddAll(ctx context.Context) error {
	_, err := r.Run(ctx, "add", "--force", "-A", ".")
	return err
}

// Commit records the staged changes without running hooks. An empty
// commit is allowed so that re-running a build always produces one.
func (r *Repository) Commit(ctx context.Context, message string) error {
	_, err := r.Run(ctx, "commit", "-q", "--no-verify", "--allow-empty", "-m", message)
	return err
}

// ForcePush force-pushes branch to remote.
func (r *Repository) ForcePush(ctx context.Context, remote, branch string) error {
	_, err := r.Run(ctx, "push", "--force", "-q", remote, branch)
	return err
}

// CurrentBranch returns the checked-out branch name.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	return r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// HeadSHA returns the full hash of HEAD.
func (r *Repository) HeadSHA(ctx context.Context) (string, error) {
	return r.Run(ctx, "rev-parse", "HEAD")
}

// HeadSubject returns the subject line of the HEAD commit.
func (r *Repository) HeadSubject(ctx context.Context) (string, error) {
	return r.Run(ctx, "log", "-1", "--pretty=format:%s")
}

// HeadCommitDate returns the committer date of HEAD in git's %ci format.
func (r *Repository) HeadCommitDate(ctx context.Context) (string, error) {
	return r.Run(ctx, "show", "-s", "--format=%ci", "HEAD")
}

// PruneRemote fetches remote and drops remote-tracking branches that no
// longer exist upstream.
func (r *Repository) PruneRemote(ctx context.Context, remote string) error {
	_, err := r.Run(ctx, "remote", "update", "--prune", remote)
	return err
}

// RemoteBranches lists the remote-tracking branches of remote with the
// "<remote>/" prefix removed. Symbolic entries such as
// "origin/HEAD -> origin/main" are skipped.
func (r *Repository) RemoteBranches(ctx context.Context, remote string) ([]string, error) {
	out, err := r.Run(ctx, "branch", "-r")
	if err != nil {
		return nil, err
	}

	prefix := remote + "/"
	var branches []string
	for _, line := range splitLines(out) {
		line = strings.TrimSpace(strings.TrimPrefix(line, "* "))
		if strings.Contains(line, " -> ") {
			continue
		}
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		branches = append(branches, strings.TrimPrefix(line, prefix))
	}
	return branches, nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
