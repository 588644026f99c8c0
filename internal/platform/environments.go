package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/model"
)

// Workflow types understood by the platform.
const (
	workflowCreateEnv  = "create_cloud_development_environment"
	workflowDeleteEnv  = "delete_cloud_development_environment"
	workflowGitMode    = "enable_git_mode"
	workflowSFTPMode   = "enable_on_server_development"
	workflowMergeToDev = "merge_cloud_development_environment_into_dev"
)

type environmentWire struct {
	ID                  string `json:"id"`
	EnvironmentCreated  int64  `json:"environment_created"`
	OnServerDevelopment bool   `json:"on_server_development"`
	Initialized         bool   `json:"initialized"`
	Lock                struct {
		Locked bool `json:"locked"`
	} `json:"lock"`
}

func (w environmentWire) toModel(id string) model.Environment {
	if w.ID != "" {
		id = w.ID
	}
	mode := model.ModeGit
	if w.OnServerDevelopment {
		mode = model.ModeSFTP
	}
	return model.Environment{
		ID:             id,
		CreatedAt:      time.Unix(w.EnvironmentCreated, 0).UTC(),
		ConnectionMode: mode,
		Locked:         w.Lock.Locked,
		Initialized:    w.Initialized,
	}
}

type workflowRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// ListEnvironments returns every environment of a site, sorted by id.
func (c *Client) ListEnvironments(ctx context.Context, site string) ([]model.Environment, error) {
	id, err := c.SiteID(ctx, site)
	if err != nil {
		return nil, err
	}

	var resp map[string]environmentWire
	if err := c.do(ctx, http.MethodGet, "/sites/"+id+"/environments", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing environments of %s: %w", site, err)
	}

	envs := make([]model.Environment, 0, len(resp))
	for key, env := range resp {
		envs = append(envs, env.toModel(key))
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].ID < envs[j].ID })
	return envs, nil
}

// GetEnvironment returns a single environment. A missing environment on
// an existing site returns ErrEnvironmentNotFound. Errors resolving the
// site, including a 404, are returned unchanged.
func (c *Client) GetEnvironment(ctx context.Context, site, env string) (model.Environment, error) {
	envs, err := c.ListEnvironments(ctx, site)
	if err != nil {
		return model.Environment{}, err
	}
	for _, e := range envs {
		if e.ID == env {
			return e, nil
		}
	}
	return model.Environment{}, fmt.Errorf("%w: %s on %s", ErrEnvironmentNotFound, env, site)
}

// EnvironmentExists reports whether env exists on site.
func (c *Client) EnvironmentExists(ctx context.Context, site, env string) (bool, error) {
	_, err := c.GetEnvironment(ctx, site, env)
	if errors.Is(err, ErrEnvironmentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateEnvironment starts cloning a new environment from dev.
func (c *Client) CreateEnvironment(ctx context.Context, site, env string) (model.ProgressHandle, error) {
	c.logger.Info("Creating environment",
		zap.String("site", site),
		zap.String("environment", env),
		zap.String("from", model.DevEnvironment),
	)
	return c.startSiteWorkflow(ctx, site, workflowRequest{
		Type: workflowCreateEnv,
		Params: map[string]any{
			"environment_id": env,
			"deploy": map[string]any{
				"clone_database": map[string]string{"from_environment": model.DevEnvironment},
				"clone_files":    map[string]string{"from_environment": model.DevEnvironment},
				"annotation":     fmt.Sprintf("Create the %q environment.", env),
			},
		},
	})
}

// DeleteEnvironment starts deleting env and, when deleteBranch is set,
// its branch in the platform repository.
func (c *Client) DeleteEnvironment(ctx context.Context, site, env string, deleteBranch bool) (model.ProgressHandle, error) {
	c.logger.Info("Deleting environment",
		zap.String("site", site),
		zap.String("environment", env),
		zap.Bool("delete_branch", deleteBranch),
	)
	return c.startSiteWorkflow(ctx, site, workflowRequest{
		Type: workflowDeleteEnv,
		Params: map[string]any{
			"environment_id": env,
			"delete_branch":  deleteBranch,
		},
	})
}

// SetConnectionMode switches env to mode. If it is already in that mode
// no job is started and AlreadyComplete is returned.
func (c *Client) SetConnectionMode(ctx context.Context, site, env string, mode model.ConnectionMode) (model.ModeChange, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid connection mode %q", mode)
	}

	current, err := c.GetEnvironment(ctx, site, env)
	if err != nil {
		return nil, err
	}
	if current.ConnectionMode == mode {
		return model.AlreadyComplete{
			Message: fmt.Sprintf("The connection mode is already set to %s.", mode),
		}, nil
	}

	kind := workflowGitMode
	if mode == model.ModeSFTP {
		kind = workflowSFTPMode
	}

	c.logger.Info("Changing connection mode",
		zap.String("site", site),
		zap.String("environment", env),
		zap.String("mode", string(mode)),
	)
	handle, err := c.startEnvWorkflow(ctx, site, env, workflowRequest{Type: kind})
	if err != nil {
		return nil, err
	}
	return model.InProgress{Handle: handle}, nil
}

// MergeToDev merges the code of env into the dev environment.
func (c *Client) MergeToDev(ctx context.Context, site, env string, updateDB bool) (model.ProgressHandle, error) {
	c.logger.Info("Merging environment into dev",
		zap.String("site", site),
		zap.String("environment", env),
	)
	return c.startEnvWorkflow(ctx, site, model.DevEnvironment, workflowRequest{
		Type: workflowMergeToDev,
		Params: map[string]any{
			"from_environment": env,
			"updatedb":         updateDB,
		},
	})
}

func (c *Client) startSiteWorkflow(ctx context.Context, site string, req workflowRequest) (model.ProgressHandle, error) {
	id, err := c.SiteID(ctx, site)
	if err != nil {
		return nil, err
	}
	var wf workflowWire
	if err := c.do(ctx, http.MethodPost, "/sites/"+id+"/workflows", req, &wf); err != nil {
		return nil, fmt.Errorf("starting %s on %s: %w", req.Type, site, err)
	}
	return c.handle(site, wf.toModel()), nil
}

func (c *Client) startEnvWorkflow(ctx context.Context, site, env string, req workflowRequest) (model.ProgressHandle, error) {
	id, err := c.SiteID(ctx, site)
	if err != nil {
		return nil, err
	}
	path := "/sites/" + id + "/environments/" + url.PathEscape(env) + "/workflows"
	var wf workflowWire
	if err := c.do(ctx, http.MethodPost, path, req, &wf); err != nil {
		return nil, fmt.Errorf("starting %s on %s.%s: %w", req.Type, site, env, err)
	}
	return c.handle(site, wf.toModel()), nil
}
