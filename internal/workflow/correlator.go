package workflow

import (
	"fmt"
	"time"

	"github.com/n3tuk/multidev-lifecycle/internal/model"
)

// Correlator decides whether a workflow is the one being waited for.
// The platform gives no handle for jobs triggered by a git push, so the
// match has to be inferred from what the workflow list exposes.
type Correlator interface {
	Matches(wf model.Workflow) bool
	String() string
}

// DescriptionCorrelator matches a workflow by exact description,
// created strictly after NotBefore.
type DescriptionCorrelator struct {
	Description string
	NotBefore   time.Time
}

// Matches implements Correlator.
func (c DescriptionCorrelator) Matches(wf model.Workflow) bool {
	return wf.Description == c.Description && wf.CreatedAt.After(c.NotBefore)
}

func (c DescriptionCorrelator) String() string {
	return fmt.Sprintf("%s after %s", c.Description, c.NotBefore.Format(time.RFC3339))
}
