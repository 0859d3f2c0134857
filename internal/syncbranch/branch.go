package syncbranch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/syncbranches/internal/githubclt"
	"github.com/simplesurance/syncbranches/internal/logfields"
)

// BranchEnsurer creates branches that do not exist yet.
type BranchEnsurer struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewBranchEnsurer(clt GithubClient) *BranchEnsurer {
	return &BranchEnsurer{
		clt:    clt,
		logger: zap.L().Named(loggerName).Named("branch_ensurer"),
	}
}

// Ensure creates the branch from repo.CommitSHA if it does not exist.
// It returns true if the branch was created.
// Errors other than the branch not being found are returned without creating
// the branch.
func (e *BranchEnsurer) Ensure(ctx context.Context, repo *RepositoryContext, branch string) (created bool, err error) {
	if branch == "" {
		return false, errors.New("branch name is empty")
	}

	logger := e.logger.With(
		logfields.RepositoryOwner(repo.Owner),
		logfields.Repository(repo.Name),
		logfields.HeadBranch(branch),
		logfields.Commit(repo.CommitSHA),
	)

	status, err := e.clt.LookupBranch(ctx, repo.Owner, repo.Name, branch)
	if err != nil {
		logger.Error("looking up branch failed", zap.Error(err))
		return false, fmt.Errorf("looking up branch %q failed: %w", branch, err)
	}

	switch status {
	case githubclt.BranchExists:
		logger.Debug("branch already exists", logEventBranchExists)
		return false, nil

	case githubclt.BranchMissing:
		if err := e.clt.CreateBranch(ctx, repo.Owner, repo.Name, branch, repo.CommitSHA); err != nil {
			logger.Error("creating branch failed", zap.Error(err))
			return false, fmt.Errorf("creating branch %q failed: %w", branch, err)
		}

		logger.Info("branch created", logEventBranchCreated)
		return true, nil

	default:
		return false, fmt.Errorf("branch lookup returned unsupported status: %s", status)
	}
}
