package model

import (
	"fmt"
	"time"
)

// WorkflowStatus is the state of an asynchronous platform job.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowSucceeded WorkflowStatus = "succeeded"
	WorkflowFailed    WorkflowStatus = "failed"
)

// Terminal reports whether the workflow has finished.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowSucceeded || s == WorkflowFailed
}

// Workflow is an asynchronous job the platform runs to converge an
// environment (create, deploy, mode change, code sync, delete).
//
// The platform does not link a git push to the job it triggers, so
// the description doubles as the correlation key.
type Workflow struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	Status      WorkflowStatus `json:"status"`
	Message     string         `json:"message,omitempty"`
}

// SyncCodeDescription is the description of the workflow the platform
// starts after a push to an existing environment.
func SyncCodeDescription(env string) string {
	return fmt.Sprintf("Sync code on %q", env)
}
