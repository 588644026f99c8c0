package sourcehost

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PullRequest is the subset of a pull request this tool reads.
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Head   struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

// OpenPullRequests lists every open pull request of project, which is
// given as "owner/repo".
func (c *Client) OpenPullRequests(ctx context.Context, project string) ([]PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/pulls?state=open&per_page=100", project)
	prs, err := collect[PullRequest](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests of %s: %w", project, err)
	}
	return prs, nil
}

// OpenPullRequestBranches returns the head branch names of all open
// pull requests of project, in API order, without duplicates.
func (c *Client) OpenPullRequestBranches(ctx context.Context, project string) ([]string, error) {
	prs, err := c.OpenPullRequests(ctx, project)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(prs))
	branches := make([]string, 0, len(prs))
	for _, pr := range prs {
		if pr.Head.Ref == "" || seen[pr.Head.Ref] {
			continue
		}
		seen[pr.Head.Ref] = true
		branches = append(branches, pr.Head.Ref)
	}

	c.logger.Debug("Fetched open pull request branches",
		zap.String("project", project),
		zap.Int("pull_requests", len(prs)),
		zap.Strings("branches", branches),
	)
	return branches, nil
}
