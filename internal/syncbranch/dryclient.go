package syncbranch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/syncbranches/internal/githubclt"
	"github.com/simplesurance/syncbranches/internal/logfields"
)

// DryGithubClient is a github-client that does not do any changes on github.
// All operations that could cause a change are simulated and always succeed.
// All other operations are forwarded to a wrapped GithubClient.
type DryGithubClient struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewDryGithubClient(clt GithubClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) LookupBranch(ctx context.Context, owner, repo, branch string) (githubclt.BranchStatus, error) {
	return c.clt.LookupBranch(ctx, owner, repo, branch)
}

func (c *DryGithubClient) CreateBranch(_ context.Context, owner, repo, branch, sha string) error {
	c.logger.Info(
		"simulated creating of github branch, no branch created on github",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.HeadBranch(branch),
		logfields.Commit(sha),
	)

	return nil
}

func (c *DryGithubClient) ListPullRequests(ctx context.Context, owner, repo string) githubclt.PRIterator {
	return c.clt.ListPullRequests(ctx, owner, repo)
}

func (c *DryGithubClient) CreatePullRequest(_ context.Context, owner, repo string, pr *githubclt.NewPullRequest) (*githubclt.PullRequest, error) {
	c.logger.Info(
		"simulated creating of github pull request, no pull request created on github",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.HeadBranch(pr.Head),
		logfields.BaseBranch(pr.Base),
		zap.String("github.pull_request_title", pr.Title),
	)

	return &githubclt.PullRequest{
		HTMLURL: fmt.Sprintf("https://github.com/%s/%s/compare/%s...%s", owner, repo, pr.Base, pr.Head),
		HeadRef: pr.Head,
		BaseRef: pr.Base,
	}, nil
}
