// Package health runs preflight checks before a command touches the
// platform, so precondition failures surface before any remote mutation.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Status represents the result status of a check.
type Status string

const (
	// StatusOK indicates the check passed.
	StatusOK Status = "ok"
	// StatusError indicates the check failed.
	StatusError Status = "error"
)

// CheckResult represents the result of a preflight check.
type CheckResult struct {
	// Name is the name of the check.
	Name string `json:"name"`
	// Status is the status of the check.
	Status Status `json:"status"`
	// Message provides additional context about the check result.
	Message string `json:"message,omitempty"`
	// Timestamp is when the check was performed.
	Timestamp time.Time `json:"timestamp"`
	// Duration is how long the check took to execute.
	Duration time.Duration `json:"duration"`
}

// Checker is the interface that preflight checks must implement.
type Checker interface {
	// Name returns the name of the check.
	Name() string
	// Check performs the check and returns the result.
	Check(ctx context.Context) CheckResult
}

// PreflightError lists the checks that failed.
type PreflightError struct {
	Failed []CheckResult
}

func (e *PreflightError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, r := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Message))
	}
	return "preflight failed: " + strings.Join(parts, "; ")
}
