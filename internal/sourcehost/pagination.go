package sourcehost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// collect follows rel="next" links from path and returns every item.
func collect[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	for next := path; next != ""; {
		resp, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return all, err
		}

		var items []T
		err = json.NewDecoder(resp.Body).Decode(&items)
		resp.Body.Close()
		if err != nil {
			return all, fmt.Errorf("decode page: %w", err)
		}

		all = append(all, items...)
		next = parseLinkNext(resp.Header.Get("Link"))
	}
	return all, nil
}

// parseLinkNext returns the rel="next" URL of an RFC 5988 Link header.
func parseLinkNext(header string) string {
	for _, part := range strings.Split(header, ",") {
		target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok || !strings.Contains(params, `rel="next"`) {
			continue
		}
		target = strings.TrimSpace(target)
		if strings.HasPrefix(target, "<") && strings.HasSuffix(target, ">") {
			return target[1 : len(target)-1]
		}
	}
	return ""
}
