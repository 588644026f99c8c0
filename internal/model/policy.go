package model

import "fmt"

// PreservationPolicy controls which matching environments survive a
// deletion run.
type PreservationPolicy struct {
	// PreservePRs keeps environments whose branch has an open pull request.
	PreservePRs bool `json:"preserve_prs" yaml:"preserve_prs"`

	// PreserveIfBranchExists keeps environments whose branch still
	// exists on the origin remote.
	PreserveIfBranchExists bool `json:"preserve_if_branch" yaml:"preserve_if_branch"`

	// Keep is how many of the most recent unpreserved environments to
	// retain.
	Keep int `json:"keep" yaml:"keep"`

	// DeleteBranch also removes the environment's branch on the platform.
	DeleteBranch bool `json:"delete_branch" yaml:"delete_branch"`
}

// Validate checks the policy.
func (p PreservationPolicy) Validate() error {
	if p.Keep < 0 {
		return fmt.Errorf("keep must be zero or greater, got: %d", p.Keep)
	}
	return nil
}

// DeletionCandidateSet partitions the environments matching a delete
// pattern. Every candidate is in exactly one of the two lists, and both
// lists preserve the oldest-first order of the selection.
type DeletionCandidateSet struct {
	ToDelete []Environment `json:"to_delete" yaml:"to_delete"`
	ToKeep   []Environment `json:"to_keep" yaml:"to_keep"`
}

// DeleteIDs returns the ids scheduled for deletion.
func (s DeletionCandidateSet) DeleteIDs() []string {
	return ids(s.ToDelete)
}

// KeepIDs returns the ids that will be kept.
func (s DeletionCandidateSet) KeepIDs() []string {
	return ids(s.ToKeep)
}

func ids(envs []Environment) []string {
	out := make([]string, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.ID)
	}
	return out
}
