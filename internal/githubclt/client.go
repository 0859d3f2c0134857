// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/syncbranches/internal/logfields"
	"github.com/simplesurance/syncbranches/internal/syncerr"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

const listPerPage = 100

// BranchStatus is the result of a branch lookup.
type BranchStatus int

const (
	BranchMissing BranchStatus = iota
	BranchExists
)

func (s BranchStatus) String() string {
	switch s {
	case BranchExists:
		return "exists"
	case BranchMissing:
		return "missing"
	default:
		return fmt.Sprintf("BranchStatus(%d)", int(s))
	}
}

// PullRequest is the subset of a github pull request that is needed to
// identify it.
type PullRequest struct {
	Number  int
	HTMLURL string
	HeadRef string
	BaseRef string
}

// NewPullRequest describes a pull request that should be created.
type NewPullRequest struct {
	Head  string
	Base  string
	Title string
	Body  string
	Draft bool
}

type option func(*options)

type options struct {
	baseURL     string
	httpTimeout time.Duration
}

// WithBaseURL configures the client to use the API of a GitHub Enterprise
// installation. apiURL is the REST API endpoint, e.g.
// https://github.example.com/api/v3.
func WithBaseURL(apiURL string) option {
	return func(o *options) {
		o.baseURL = apiURL
	}
}

// WithHTTPTimeout sets the timeout of the underlying http client.
// Branch lookups bypass the http client, they are bounded by a context
// deadline of the same duration instead.
func WithHTTPTimeout(d time.Duration) option {
	return func(o *options) {
		o.httpTimeout = d
	}
}

// Client is a github API client.
// All methods return a *syncerr.HostingError when the API operation failed.
type Client struct {
	restClt     *github.Client
	httpTimeout time.Duration
	logger      *zap.Logger
}

// New returns a new github api client.
func New(oauthAPItoken string, opts ...option) (*Client, error) {
	o := options{httpTimeout: DefaultHTTPClientTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	restClt := github.NewClient(newHTTPClient(oauthAPItoken, o.httpTimeout))

	if o.baseURL != "" && !isPublicAPIURL(o.baseURL) {
		var err error

		restClt, err = restClt.WithEnterpriseURLs(o.baseURL, o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("setting github api url failed: %w", err)
		}
	}

	clt := newWithRESTClient(restClt)
	clt.httpTimeout = o.httpTimeout

	return clt, nil
}

func newWithRESTClient(restClt *github.Client) *Client {
	return &Client{
		restClt: restClt,
		logger:  zap.L().Named(loggerName),
	}
}

func isPublicAPIURL(u string) bool {
	return strings.TrimSuffix(u, "/") == "https://api.github.com"
}

func newHTTPClient(apiToken string, timeout time.Duration) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: timeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = timeout

	return tc
}

// LookupBranch returns BranchExists if the branch exists in the repository
// and BranchMissing if github responded with a not found error.
// All other failures are returned as error.
func (clt *Client) LookupBranch(ctx context.Context, owner, repo, branch string) (BranchStatus, error) {
	const op = "get_branch"

	// GetBranch sends the request via the transport of the http client,
	// the client timeout does not apply
	if clt.httpTimeout > 0 {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, clt.httpTimeout)
		defer cancelFn()
	}

	// non-200 responses are returned as plain errors, not as
	// *github.ErrorResponse, the status code is only available in resp
	_, resp, err := clt.restClt.Repositories.GetBranch(ctx, owner, repo, branch, 0)
	if err != nil {
		err = clt.wrapErrors(op, resp, err)
		if syncerr.IsNotFound(err) {
			clt.logger.Debug("branch does not exist",
				logfields.RepositoryOwner(owner),
				logfields.Repository(repo),
				logfields.HeadBranch(branch),
				logfields.Event("github_branch_not_found"),
			)

			return BranchMissing, nil
		}

		return BranchMissing, err
	}

	return BranchExists, nil
}

// CreateBranch creates the branch refs/heads/<branch> pointing to the
// commit sha.
func (clt *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	const op = "create_ref"

	if branch == "" {
		return errors.New("provided branch name is empty")
	}

	_, resp, err := clt.restClt.Git.CreateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	})
	if err != nil {
		return clt.wrapErrors(op, resp, err)
	}

	return nil
}

// CreatePullRequest creates a pull request and returns it.
func (clt *Client) CreatePullRequest(ctx context.Context, owner, repo string, newPR *NewPullRequest) (*PullRequest, error) {
	const op = "create_pull_request"

	pr, resp, err := clt.restClt.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(newPR.Title),
		Head:  github.String(newPR.Head),
		Base:  github.String(newPR.Base),
		Body:  github.String(newPR.Body),
		Draft: github.Bool(newPR.Draft),
	})
	if err != nil {
		return nil, clt.wrapErrors(op, resp, err)
	}

	return toPullRequest(pr), nil
}

func toPullRequest(pr *github.PullRequest) *PullRequest {
	return &PullRequest{
		Number:  pr.GetNumber(),
		HTMLURL: pr.GetHTMLURL(),
		HeadRef: pr.GetHead().GetRef(),
		BaseRef: pr.GetBase().GetRef(),
	}
}

type PRIterator interface {
	Next() (*PullRequest, error)
}

type PRIter struct {
	clt *Client

	ctx   context.Context
	owner string
	repo  string

	unseen []*github.PullRequest

	nextPage int
	finished bool
}

// Next returns the next open pull request.
// When the last result was returned a nil PullRequest is returned.
func (it *PRIter) Next() (*PullRequest, error) {
	const op = "list_pull_requests"

	if len(it.unseen) > 0 {
		result := it.unseen[0]
		it.unseen = it.unseen[1:]

		return toPullRequest(result), nil
	}

	if it.finished {
		return nil, nil
	}

	prs, resp, err := it.clt.restClt.PullRequests.List(it.ctx, it.owner, it.repo, &github.PullRequestListOptions{
		State: "open",
		ListOptions: github.ListOptions{
			Page:    it.nextPage,
			PerPage: listPerPage,
		},
	})
	if err != nil {
		return nil, it.clt.wrapErrors(op, resp, err)
	}

	if resp.NextPage == 0 || len(prs) == 0 {
		it.finished = true
	} else {
		it.nextPage = resp.NextPage
	}

	it.unseen = prs

	return it.Next()
}

// ListPullRequests returns an iterator over all open pull requests of the
// repository. Pages are fetched on demand.
func (clt *Client) ListPullRequests(ctx context.Context, owner, repo string) PRIterator { // interface is returned to make the method mockable
	return &PRIter{
		clt:      clt,
		ctx:      ctx,
		owner:    owner,
		repo:     repo,
		nextPage: 1,
	}
}

func (clt *Client) wrapErrors(op string, resp *github.Response, err error) error {
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			logfields.Operation(op),
			zap.Int("github_api_rate_limit", rateLimitErr.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", rateLimitErr.Rate.Reset.Time),
		)

		return syncerr.NewHostingError(op, responseStatusCode(rateLimitErr.Response), err)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		return syncerr.NewHostingError(op, responseStatusCode(respErr.Response), err)
	}

	if resp != nil {
		return syncerr.NewHostingError(op, responseStatusCode(resp.Response), err)
	}

	return syncerr.NewHostingError(op, 0, err)
}

func responseStatusCode(resp *http.Response) int {
	if resp == nil {
		return 0
	}

	return resp.StatusCode
}
