package syncbranch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/syncbranches/internal/githubclt"
	"github.com/simplesurance/syncbranches/internal/notify"
	"github.com/simplesurance/syncbranches/internal/syncbranch/mocks"
	"github.com/simplesurance/syncbranches/internal/syncerr"
)

const apiPathPrefix = "/api/v3/repos/octo/hello"

// githubServer is an httptest GitHub REST API for the repository octo/hello.
type githubServer struct {
	lock sync.Mutex

	getBranchStatus int

	createdRefs  []map[string]any
	createdPulls []map[string]any
}

func (s *githubServer) mux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc(apiPathPrefix+"/branches/", func(w http.ResponseWriter, _ *http.Request) {
		s.lock.Lock()
		status := s.getBranchStatus
		s.lock.Unlock()

		w.WriteHeader(status)
		switch status {
		case http.StatusOK:
			fmt.Fprint(w, `{"name": "main-sync-feature-x-123456"}`)
		case http.StatusNotFound:
			fmt.Fprint(w, `{"message": "Branch not found"}`)
		default:
			fmt.Fprint(w, `{"message": "Server Error"}`)
		}
	})

	mux.HandleFunc(apiPathPrefix+"/git/refs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		s.lock.Lock()
		s.createdRefs = append(s.createdRefs, body)
		s.lock.Unlock()

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"ref": %q, "object": {"sha": %q}}`, body["ref"], body["sha"])
	})

	mux.HandleFunc(apiPathPrefix+"/pulls", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `[]`)

		case http.MethodPost:
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

			s.lock.Lock()
			s.createdPulls = append(s.createdPulls, body)
			nr := len(s.createdPulls)
			s.lock.Unlock()

			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"number": %d, "html_url": "https://github.com/octo/hello/pull/%d", "head": {"ref": %q}, "base": {"ref": %q}}`,
				nr, nr, body["head"], body["base"])

		default:
			t.Errorf("unexpected method %s on %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	return mux
}

func (s *githubServer) CreatedRefs() []map[string]any {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]map[string]any{}, s.createdRefs...)
}

func (s *githubServer) CreatedPulls() []map[string]any {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]map[string]any{}, s.createdPulls...)
}

func startGithubServer(t *testing.T, srv *githubServer) *githubclt.Client {
	t.Helper()

	// cleanups run in reverse order, idle client connections are closed
	// after the server was shut down
	t.Cleanup(func() {
		if tr, ok := http.DefaultTransport.(*http.Transport); ok {
			tr.CloseIdleConnections()
		}
	})

	httpSrv := httptest.NewServer(srv.mux(t))
	t.Cleanup(httpSrv.Close)

	clt, err := githubclt.New("token", githubclt.WithBaseURL(httpSrv.URL+"/api/v3"))
	require.NoError(t, err)

	return clt
}

func TestRunWithGithubAPICreatesMissingBranch(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	srv := githubServer{getBranchStatus: http.StatusNotFound}
	clt := startGithubServer(t, &srv)

	mockctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(mockctrl)
	notifier.EXPECT().
		Notify(gomock.Any(), gomock.Eq(&notify.Message{
			Repository:     repoName,
			Source:         "feature-x",
			Target:         "main",
			PullRequestURL: "https://github.com/octo/hello/pull/1",
			Status:         notify.StatusSuccess,
		})).
		Return(nil)

	output := newOutputRecorder()
	syncer := mustNewSyncer(t, clt, notifier, output)

	outcome, err := syncer.Run(context.Background(), testRequest(), testRepo())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.True(t, outcome.BranchCreated)
	assert.True(t, outcome.PullRequestCreated)

	refs := srv.CreatedRefs()
	require.Len(t, refs, 1)
	assert.Equal(t, "refs/heads/main-sync-feature-x-123456", refs[0]["ref"])
	assert.Equal(t, commitSHA, refs[0]["sha"])

	pulls := srv.CreatedPulls()
	require.Len(t, pulls, 1)
	assert.Equal(t, "main-sync-feature-x-123456", pulls[0]["head"])
	assert.Equal(t, "main", pulls[0]["base"])
	assert.Equal(t, false, pulls[0]["draft"])

	assert.Equal(t, map[string]string{
		OutputPullRequestURL:    "https://github.com/octo/hello/pull/1",
		OutputPullRequestNumber: "1",
	}, output.outputs)
}

func TestRunWithGithubAPIBranchLookupServerError(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	srv := githubServer{getBranchStatus: http.StatusInternalServerError}
	clt := startGithubServer(t, &srv)

	mockctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(mockctrl)
	notifier.EXPECT().
		Notify(gomock.Any(), gomock.Eq(&notify.Message{
			Repository: repoName,
			Source:     "feature-x",
			Target:     "main",
			Status:     notify.StatusFailure,
		})).
		Return(nil)

	output := newOutputRecorder()
	syncer := mustNewSyncer(t, clt, notifier, output)

	outcome, err := syncer.Run(context.Background(), testRequest(), testRepo())
	require.Error(t, err)

	var hostingErr *syncerr.HostingError
	require.ErrorAs(t, err, &hostingErr)
	assert.Equal(t, http.StatusInternalServerError, hostingErr.StatusCode)
	assert.Equal(t, "get_branch", hostingErr.Op)

	assert.Equal(t, StatusFailure, outcome.Status)
	assert.Empty(t, srv.CreatedRefs())
	assert.Empty(t, srv.CreatedPulls())
	assert.Empty(t, output.outputs)
}

func TestRunWithGithubAPIExistingBranch(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	srv := githubServer{getBranchStatus: http.StatusOK}
	clt := startGithubServer(t, &srv)

	syncer := mustNewSyncer(t, clt, nil, newOutputRecorder())

	outcome, err := syncer.Run(context.Background(), testRequest(), testRepo())
	require.NoError(t, err)

	assert.False(t, outcome.BranchCreated)
	assert.True(t, outcome.PullRequestCreated)
	assert.Empty(t, srv.CreatedRefs())
	assert.Len(t, srv.CreatedPulls(), 1)
}
