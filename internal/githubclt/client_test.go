package githubclt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/syncbranches/internal/syncerr"
)

const (
	owner = "octo"
	repo  = "hello"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	restClt := github.NewClient(srv.Client())
	baseURL, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	restClt.BaseURL = baseURL

	return newWithRESTClient(restClt)
}

func TestLookupBranchExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/branches/main-sync-feature-x-123456", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"name": "main-sync-feature-x-123456"}`)
	})

	clt := newTestClient(t, mux)

	status, err := clt.LookupBranch(context.Background(), owner, repo, "main-sync-feature-x-123456")
	require.NoError(t, err)
	assert.Equal(t, BranchExists, status)
}

func TestLookupBranchNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/branches/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Branch not found"}`)
	})

	clt := newTestClient(t, mux)

	status, err := clt.LookupBranch(context.Background(), owner, repo, "missing")
	require.NoError(t, err)
	assert.Equal(t, BranchMissing, status)
}

func TestLookupBranchServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/branches/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message": "boom"}`)
	})

	clt := newTestClient(t, mux)

	_, err := clt.LookupBranch(context.Background(), owner, repo, "broken")
	require.Error(t, err)

	var hostingErr *syncerr.HostingError
	require.ErrorAs(t, err, &hostingErr)
	assert.Equal(t, http.StatusInternalServerError, hostingErr.StatusCode)
	assert.Equal(t, "get_branch", hostingErr.Op)
	assert.False(t, syncerr.IsNotFound(err))
}

func TestCreateBranch(t *testing.T) {
	var received map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/git/refs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &received))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"ref": "refs/heads/main-sync-feature-x-123456", "object": {"sha": "abcdef123456"}}`)
	})

	clt := newTestClient(t, mux)

	err := clt.CreateBranch(context.Background(), owner, repo, "main-sync-feature-x-123456", "abcdef123456")
	require.NoError(t, err)

	assert.Equal(t, "refs/heads/main-sync-feature-x-123456", received["ref"])
	assert.Equal(t, "abcdef123456", received["sha"])
}

func TestLookupBranchTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/branches/slow", func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	clt := newTestClient(t, mux)
	clt.httpTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := clt.LookupBranch(context.Background(), owner, repo, "slow")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	var hostingErr *syncerr.HostingError
	require.ErrorAs(t, err, &hostingErr)
	assert.Equal(t, 0, hostingErr.StatusCode)
	assert.False(t, syncerr.IsNotFound(err))
}

func TestCreateBranchEmptyName(t *testing.T) {
	clt := newTestClient(t, http.NewServeMux())

	err := clt.CreateBranch(context.Background(), owner, repo, "", "abcdef123456")
	assert.Error(t, err)
}

func TestCreatePullRequest(t *testing.T) {
	var received map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{
			"number": 42,
			"html_url": "https://github.com/octo/hello/pull/42",
			"head": {"ref": "main-sync-feature-x-123456"},
			"base": {"ref": "main"}
		}`)
	})

	clt := newTestClient(t, mux)

	pr, err := clt.CreatePullRequest(context.Background(), owner, repo, &NewPullRequest{
		Head:  "main-sync-feature-x-123456",
		Base:  "main",
		Title: "sync: main with feature-x",
		Body:  "sync-branches: syncing main with feature-x",
	})
	require.NoError(t, err)

	assert.Equal(t, &PullRequest{
		Number:  42,
		HTMLURL: "https://github.com/octo/hello/pull/42",
		HeadRef: "main-sync-feature-x-123456",
		BaseRef: "main",
	}, pr)

	assert.Equal(t, "main-sync-feature-x-123456", received["head"])
	assert.Equal(t, "main", received["base"])
	assert.Equal(t, "sync: main with feature-x", received["title"])
	assert.Equal(t, "sync-branches: syncing main with feature-x", received["body"])
	assert.Equal(t, false, received["draft"])
}

func TestCreatePullRequestValidationFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/pulls", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "Validation Failed"}`)
	})

	clt := newTestClient(t, mux)

	pr, err := clt.CreatePullRequest(context.Background(), owner, repo, &NewPullRequest{Head: "a", Base: "b"})
	require.Error(t, err)
	assert.Nil(t, pr)

	var hostingErr *syncerr.HostingError
	require.ErrorAs(t, err, &hostingErr)
	assert.Equal(t, http.StatusUnprocessableEntity, hostingErr.StatusCode)
}

func TestListPullRequestsFollowsPages(t *testing.T) {
	var requestedPages []string

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/pulls", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		requestedPages = append(requestedPages, page)

		assert.Equal(t, "open", r.URL.Query().Get("state"))
		assert.Equal(t, strconv.Itoa(listPerPage), r.URL.Query().Get("per_page"))

		switch page {
		case "1":
			w.Header().Set("Link", `<http://example.invalid/repos/octo/hello/pulls?page=2>; rel="next", <http://example.invalid/repos/octo/hello/pulls?page=2>; rel="last"`)
			fmt.Fprint(w, `[
				{"number": 1, "html_url": "https://github.com/octo/hello/pull/1", "head": {"ref": "a"}, "base": {"ref": "main"}},
				{"number": 2, "html_url": "https://github.com/octo/hello/pull/2", "head": {"ref": "b"}, "base": {"ref": "main"}}
			]`)
		case "2":
			fmt.Fprint(w, `[
				{"number": 3, "html_url": "https://github.com/octo/hello/pull/3", "head": {"ref": "c"}, "base": {"ref": "develop"}}
			]`)
		default:
			t.Errorf("unexpected page requested: %q", page)
			fmt.Fprint(w, `[]`)
		}
	})

	clt := newTestClient(t, mux)

	it := clt.ListPullRequests(context.Background(), owner, repo)

	var numbers []int
	for {
		pr, err := it.Next()
		require.NoError(t, err)
		if pr == nil {
			break
		}

		numbers = append(numbers, pr.Number)
	}

	assert.Equal(t, []int{1, 2, 3}, numbers)
	assert.Equal(t, []string{"1", "2"}, requestedPages)
}

func TestListPullRequestsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/hello/pulls", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	clt := newTestClient(t, mux)

	pr, err := clt.ListPullRequests(context.Background(), owner, repo).Next()
	require.Error(t, err)
	assert.Nil(t, pr)

	var hostingErr *syncerr.HostingError
	require.ErrorAs(t, err, &hostingErr)
	assert.Equal(t, "list_pull_requests", hostingErr.Op)
	assert.Equal(t, http.StatusBadGateway, hostingErr.StatusCode)
}

func TestNewWithEnterpriseURL(t *testing.T) {
	clt, err := New("token", WithBaseURL("https://github.example.com/api/v3"))
	require.NoError(t, err)
	assert.Equal(t, "https://github.example.com/api/v3/", clt.restClt.BaseURL.String())

	clt, err = New("token", WithBaseURL("https://api.github.com"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com/", clt.restClt.BaseURL.String())
}
