package sourcehost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Repository is the subset of a repository this tool reads.
type Repository struct {
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	SSHURL   string `json:"ssh_url"`
	CloneURL string `json:"clone_url"`
	HTMLURL  string `json:"html_url"`
}

// CreateRepository creates project ("owner/name"). When owner is the
// authenticated user the repository is created under the user,
// otherwise under the organization.
func (c *Client) CreateRepository(ctx context.Context, project string, private bool) (*Repository, error) {
	owner, name, err := SplitProject(project)
	if err != nil {
		return nil, err
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return nil, fmt.Errorf("looking up authenticated user: %w", err)
	}

	path := "/orgs/" + url.PathEscape(owner) + "/repos"
	if strings.EqualFold(owner, user.Login) {
		path = "/user/repos"
	}

	body := map[string]any{"name": name, "private": private}
	var repo Repository
	if err := c.doJSON(ctx, http.MethodPost, path, body, &repo); err != nil {
		return nil, fmt.Errorf("creating repository %s: %w", project, err)
	}

	c.logger.Info("Created repository",
		zap.String("project", repo.FullName),
		zap.Bool("private", repo.Private),
	)
	return &repo, nil
}

// SplitProject splits "owner/name".
func SplitProject(project string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(project, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid project %q (must be owner/name)", project)
	}
	return owner, name, nil
}

// ProjectFromRemoteURL derives "owner/name" from a git remote URL in
// scp-like, ssh:// or https:// form.
func ProjectFromRemoteURL(remote string) (string, error) {
	remote = strings.TrimSpace(remote)

	var path string
	switch {
	case strings.Contains(remote, "://"):
		u, err := url.Parse(remote)
		if err != nil {
			return "", fmt.Errorf("invalid remote url %q: %w", remote, err)
		}
		path = u.Path
	case strings.Contains(remote, ":"):
		_, path, _ = strings.Cut(remote, ":")
	default:
		return "", fmt.Errorf("unrecognized remote url %q", remote)
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	if _, _, err := SplitProject(path); err != nil {
		return "", fmt.Errorf("remote url %q does not name a project: %w", remote, err)
	}
	return path, nil
}
