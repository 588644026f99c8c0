package model

import "context"

// ProgressHandle is a pollable reference to a running platform job.
type ProgressHandle interface {
	// Poll refreshes the job state. done is true once the job reached a
	// terminal state; a failed job returns done and a non-nil error.
	Poll(ctx context.Context) (done bool, err error)

	// Description is a human readable label for logging.
	Description() string
}

// ModeChange is the result of requesting an environment transition.
// It is either AlreadyComplete or InProgress.
type ModeChange interface {
	modeChange()
}

// AlreadyComplete is returned when the platform had nothing to do.
type AlreadyComplete struct {
	Message string
}

// InProgress is returned when the platform started a job that must be
// waited on.
type InProgress struct {
	Handle ProgressHandle
}

func (AlreadyComplete) modeChange() {}
func (InProgress) modeChange()      {}
