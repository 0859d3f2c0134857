package syncbranch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/syncbranches/internal/githubclt"
	"github.com/simplesurance/syncbranches/internal/logfields"
)

// PullRequestReconciler ensures that one open pull request between 2
// branches exists.
type PullRequestReconciler struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewPullRequestReconciler(clt GithubClient) *PullRequestReconciler {
	return &PullRequestReconciler{
		clt:    clt,
		logger: zap.L().Named(loggerName).Named("pull_request_reconciler"),
	}
}

// Reconcile returns the open pull request from head into base.
// If none exists, a non-draft pull request with title and body is created.
// created is true when the pull request was created.
func (r *PullRequestReconciler) Reconcile(
	ctx context.Context,
	repo *RepositoryContext,
	head, base string,
	title, body string,
) (pr *githubclt.PullRequest, created bool, err error) {
	logger := r.logger.With(
		logfields.RepositoryOwner(repo.Owner),
		logfields.Repository(repo.Name),
		logfields.HeadBranch(head),
		logfields.BaseBranch(base),
	)

	pr, err = r.find(ctx, repo, head, base)
	if err != nil {
		logger.Error("listing pull requests failed", zap.Error(err))
		return nil, false, fmt.Errorf("listing pull requests failed: %w", err)
	}

	if pr != nil {
		logger.Info(
			"pull request already exists",
			logEventPullRequestExists,
			logfields.PullRequest(pr.Number),
			logfields.PullRequestURL(pr.HTMLURL),
		)

		return pr, false, nil
	}

	pr, err = r.clt.CreatePullRequest(ctx, repo.Owner, repo.Name, &githubclt.NewPullRequest{
		Head:  head,
		Base:  base,
		Title: title,
		Body:  body,
		Draft: false,
	})
	if err != nil {
		logger.Error("creating pull request failed", zap.Error(err))
		return nil, false, fmt.Errorf("creating pull request failed: %w", err)
	}

	logger.Info(
		"pull request created",
		logEventPullRequestCreated,
		logfields.PullRequest(pr.Number),
		logfields.PullRequestURL(pr.HTMLURL),
	)

	return pr, true, nil
}

func (r *PullRequestReconciler) find(ctx context.Context, repo *RepositoryContext, head, base string) (*githubclt.PullRequest, error) {
	it := r.clt.ListPullRequests(ctx, repo.Owner, repo.Name)

	for {
		pr, err := it.Next()
		if err != nil {
			return nil, err
		}

		if pr == nil {
			return nil, nil
		}

		if pr.HeadRef == head && pr.BaseRef == base {
			return pr, nil
		}
	}
}
