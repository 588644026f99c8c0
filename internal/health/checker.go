package health

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

func result(name string, start time.Time, err error, okMessage string) CheckResult {
	r := CheckResult{
		Name:      name,
		Status:    StatusOK,
		Message:   okMessage,
		Timestamp: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
	}
	return r
}

// CredentialChecker checks that a required secret is set.
type CredentialChecker struct {
	name  string
	hint  string
	value string
}

// NewCredentialChecker creates a checker named name that fails when
// value is empty. hint tells the user where to set it.
func NewCredentialChecker(name, value, hint string) *CredentialChecker {
	return &CredentialChecker{name: name, value: value, hint: hint}
}

// Name returns the name of the check.
func (c *CredentialChecker) Name() string {
	return c.name
}

// Check performs the check.
func (c *CredentialChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	var err error
	if c.value == "" {
		err = fmt.Errorf("not set (%s)", c.hint)
	}
	return result(c.Name(), start, err, "set")
}

// BinaryChecker checks that an executable is on PATH.
type BinaryChecker struct {
	binary   string
	lookPath func(string) (string, error)
}

// NewBinaryChecker creates a checker for the given executable.
func NewBinaryChecker(binary string) *BinaryChecker {
	return &BinaryChecker{binary: binary, lookPath: exec.LookPath}
}

// Name returns the name of the check.
func (b *BinaryChecker) Name() string {
	return b.binary + "-binary"
}

// Check performs the check.
func (b *BinaryChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	path, err := b.lookPath(b.binary)
	if err != nil {
		err = fmt.Errorf("%s not found on PATH", b.binary)
	}
	return result(b.Name(), start, err, path)
}

// BranchReader is the part of a git working copy the repository check
// needs.
type BranchReader interface {
	Dir() string
	CurrentBranch(ctx context.Context) (string, error)
}

// RepositoryChecker checks that the build directory is a git working
// copy with a checked-out branch.
type RepositoryChecker struct {
	repo BranchReader
}

// NewRepositoryChecker creates a working copy checker.
func NewRepositoryChecker(repo BranchReader) *RepositoryChecker {
	return &RepositoryChecker{repo: repo}
}

// Name returns the name of the check.
func (r *RepositoryChecker) Name() string {
	return "working-copy"
}

// Check performs the check.
func (r *RepositoryChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	branch, err := r.repo.CurrentBranch(ctx)
	if err != nil {
		err = fmt.Errorf("%s is not a git working copy: %w", r.repo.Dir(), err)
	}
	return result(r.Name(), start, err, fmt.Sprintf("%s on %s", r.repo.Dir(), branch))
}

// Authenticator is a platform client that can prove its credentials.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// PlatformChecker checks that the platform is reachable and accepts the
// configured machine token.
type PlatformChecker struct {
	auth Authenticator
}

// NewPlatformChecker creates a platform reachability checker.
func NewPlatformChecker(auth Authenticator) *PlatformChecker {
	return &PlatformChecker{auth: auth}
}

// Name returns the name of the check.
func (p *PlatformChecker) Name() string {
	return "platform"
}

// Check performs the check.
func (p *PlatformChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	return result(p.Name(), start, p.auth.Authenticate(ctx), "authenticated")
}
