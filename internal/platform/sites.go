package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// SiteID resolves a site name to its id. Results are cached for the
// lifetime of the client.
func (c *Client) SiteID(ctx context.Context, site string) (string, error) {
	c.mu.Lock()
	id, ok := c.siteIDs[site]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/site-names/"+url.PathEscape(site), nil, &resp); err != nil {
		return "", fmt.Errorf("looking up site %s: %w", site, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("looking up site %s: empty id", site)
	}

	c.mu.Lock()
	c.siteIDs[site] = resp.ID
	c.mu.Unlock()
	return resp.ID, nil
}

// ConnectionInfo describes how to reach an environment over ssh.
type ConnectionInfo struct {
	GitURL   string
	SFTPUser string
	SFTPHost string
	SFTPPort int
}

// ConnectionInfo returns the git and sftp endpoints of an environment.
// All environments of a site share the dev code server.
func (c *Client) ConnectionInfo(ctx context.Context, site, env string) (ConnectionInfo, error) {
	id, err := c.SiteID(ctx, site)
	if err != nil {
		return ConnectionInfo{}, err
	}
	return ConnectionInfo{
		GitURL:   fmt.Sprintf("ssh://codeserver.dev.%s@codeserver.dev.%s.%s:2222/~/repository.git", id, id, c.hostSuffix),
		SFTPUser: fmt.Sprintf("%s.%s", env, id),
		SFTPHost: fmt.Sprintf("appserver.%s.%s.%s", env, id, c.hostSuffix),
		SFTPPort: 2222,
	}, nil
}
