package platform

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/n3tuk/multidev-lifecycle/internal/model"
)

type workflowWire struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	CreatedAt   float64        `json:"created_at"`
	Result      *string        `json:"result"`
	FinishedAt  *float64       `json:"finished_at"`
	FinalTask   *finalTaskWire `json:"final_task"`
}

type finalTaskWire struct {
	Reason string `json:"reason"`
}

func (w workflowWire) toModel() model.Workflow {
	sec, frac := math.Modf(w.CreatedAt)
	wf := model.Workflow{
		ID:          w.ID,
		Description: w.Description,
		CreatedAt:   time.Unix(int64(sec), int64(frac*1e9)).UTC(),
		Status:      model.WorkflowRunning,
	}
	if w.Result != nil {
		switch *w.Result {
		case "succeeded":
			wf.Status = model.WorkflowSucceeded
		case "failed", "aborted":
			wf.Status = model.WorkflowFailed
		}
	}
	if w.FinalTask != nil {
		wf.Message = w.FinalTask.Reason
	}
	return wf
}

// ListWorkflows returns the workflows of a site, most recent first.
func (c *Client) ListWorkflows(ctx context.Context, site string) ([]model.Workflow, error) {
	id, err := c.SiteID(ctx, site)
	if err != nil {
		return nil, err
	}

	var resp []workflowWire
	if err := c.do(ctx, http.MethodGet, "/sites/"+id+"/workflows", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing workflows of %s: %w", site, err)
	}

	out := make([]model.Workflow, 0, len(resp))
	for _, wf := range resp {
		out = append(out, wf.toModel())
	}
	return out, nil
}

// LatestWorkflow returns the head of the site's workflow list, which the
// platform orders most recent first, or ErrNoWorkflows.
func (c *Client) LatestWorkflow(ctx context.Context, site string) (model.Workflow, error) {
	wfs, err := c.ListWorkflows(ctx, site)
	if err != nil {
		return model.Workflow{}, err
	}
	if len(wfs) == 0 {
		return model.Workflow{}, ErrNoWorkflows
	}
	return wfs[0], nil
}

// GetWorkflow fetches the current state of a single workflow.
func (c *Client) GetWorkflow(ctx context.Context, site, workflowID string) (model.Workflow, error) {
	id, err := c.SiteID(ctx, site)
	if err != nil {
		return model.Workflow{}, err
	}

	var wf workflowWire
	path := "/sites/" + id + "/workflows/" + url.PathEscape(workflowID)
	if err := c.do(ctx, http.MethodGet, path, nil, &wf); err != nil {
		return model.Workflow{}, fmt.Errorf("fetching workflow %s: %w", workflowID, err)
	}
	return wf.toModel(), nil
}

// workflowHandle tracks a job started by this client.
type workflowHandle struct {
	client *Client
	site   string
	wf     model.Workflow
}

func (c *Client) handle(site string, wf model.Workflow) *workflowHandle {
	return &workflowHandle{client: c, site: site, wf: wf}
}

// Poll implements model.ProgressHandle.
func (h *workflowHandle) Poll(ctx context.Context) (bool, error) {
	if !h.wf.Status.Terminal() {
		wf, err := h.client.GetWorkflow(ctx, h.site, h.wf.ID)
		if err != nil {
			return false, err
		}
		h.wf = wf
	}

	switch h.wf.Status {
	case model.WorkflowSucceeded:
		return true, nil
	case model.WorkflowFailed:
		return true, &WorkflowError{Description: h.wf.Description, Message: h.wf.Message}
	default:
		return false, nil
	}
}

// Description implements model.ProgressHandle.
func (h *workflowHandle) Description() string {
	return h.wf.Description
}

// Workflow returns the last observed state.
func (h *workflowHandle) Workflow() model.Workflow {
	return h.wf
}
