package sourcehost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pr(number int, ref string) map[string]any {
	return map[string]any{
		"number": number,
		"state":  "open",
		"head":   map[string]string{"ref": ref},
	}
}

func newServer(t *testing.T, r chi.Router) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, New(Config{BaseURL: srv.URL, Token: "gh-token", HTTPClient: srv.Client()})
}

func TestOpenPullRequestBranchesPaginates(t *testing.T) {
	r := chi.NewRouter()
	var srv *httptest.Server
	r.Get("/repos/{owner}/{repo}/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		assert.Equal(t, "open", r.URL.Query().Get("state"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_ = json.NewEncoder(w).Encode([]any{pr(3, "feature/c"), pr(4, "foo")})
			return
		}
		next := fmt.Sprintf("%s/repos/%s/%s/pulls?state=open&per_page=100&page=2",
			srv.URL, chi.URLParam(r, "owner"), chi.URLParam(r, "repo"))
		w.Header().Set("Link", `<`+next+`>; rel="next", <`+next+`>; rel="last"`)
		_ = json.NewEncoder(w).Encode([]any{pr(1, "foo"), pr(2, "bar")})
	})
	srv, c := newServer(t, r)

	branches, err := c.OpenPullRequestBranches(context.Background(), "example/site")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar", "feature/c"}, branches)
}

func TestOpenPullRequestBranchesEmpty(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/repos/{owner}/{repo}/pulls", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	_, c := newServer(t, r)

	branches, err := c.OpenPullRequestBranches(context.Background(), "example/site")
	require.NoError(t, err)
	assert.Empty(t, branches)
}

func TestOpenPullRequestsError(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/repos/{owner}/{repo}/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	_, c := newServer(t, r)

	_, err := c.OpenPullRequests(context.Background(), "example/missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "Not Found")
}

func TestCreateRepository(t *testing.T) {
	tests := []struct {
		name     string
		project  string
		wantPath string
	}{
		{name: "user repository", project: "octocat/site", wantPath: "/user/repos"},
		{name: "organization repository", project: "example/site", wantPath: "/orgs/example/repos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			var gotBody map[string]any

			r := chi.NewRouter()
			r.Get("/user", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"login":"Octocat"}`))
			})
			create := func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_ = json.NewDecoder(r.Body).Decode(&gotBody)
				w.WriteHeader(http.StatusCreated)
				_, _ = fmt.Fprintf(w, `{"full_name":%q,"private":true}`, tt.project)
			}
			r.Post("/user/repos", create)
			r.Post("/orgs/{org}/repos", create)
			_, c := newServer(t, r)

			repo, err := c.CreateRepository(context.Background(), tt.project, true)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, "site", gotBody["name"])
			assert.Equal(t, true, gotBody["private"])
			assert.Equal(t, tt.project, repo.FullName)
		})
	}
}

func TestCreateRepositoryInvalidProject(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.CreateRepository(context.Background(), "no-slash", false)
	assert.Error(t, err)
}

func TestProjectFromRemoteURL(t *testing.T) {
	tests := []struct {
		remote  string
		want    string
		wantErr bool
	}{
		{remote: "git@github.com:example/site.git", want: "example/site"},
		{remote: "https://github.com/example/site.git", want: "example/site"},
		{remote: "https://github.com/example/site", want: "example/site"},
		{remote: "ssh://git@github.com/example/site.git", want: "example/site"},
		{remote: "git@github.com:example.git", wantErr: true},
		{remote: "/srv/git/site.git", wantErr: true},
		{remote: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			got, err := ProjectFromRemoteURL(tt.remote)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLinkNext(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "empty header", header: "", want: ""},
		{
			name:   "next and last",
			header: `<https://api.github.com/repos/o/r/pulls?page=2>; rel="next", <https://api.github.com/repos/o/r/pulls?page=5>; rel="last"`,
			want:   "https://api.github.com/repos/o/r/pulls?page=2",
		},
		{
			name:   "only last",
			header: `<https://api.github.com/repos/o/r/pulls?page=1>; rel="last"`,
			want:   "",
		},
		{
			name:   "prev before next",
			header: `<https://api.github.com/repos/o/r/pulls?page=1>; rel="prev", <https://api.github.com/repos/o/r/pulls?page=3>; rel="next"`,
			want:   "https://api.github.com/repos/o/r/pulls?page=3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLinkNext(tt.header))
		})
	}
}
