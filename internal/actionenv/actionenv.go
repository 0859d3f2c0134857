// Package actionenv reads the inputs of a sync run from the GitHub Actions
// environment and reports the result back to it.
package actionenv

import (
	"context"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/sethvargo/go-githubactions"
	"go.uber.org/zap"

	"github.com/simplesurance/syncbranches/internal/logfields"
	"github.com/simplesurance/syncbranches/internal/syncbranch"
	"github.com/simplesurance/syncbranches/internal/syncerr"
)

const loggerName = "actionenv"

const (
	InputSource      = "source"
	InputTarget      = "target"
	InputGithubToken = "github_token"
	InputWebhookURL  = "webhook_url"
)

var (
	repoOwnerQuery = mustParseQuery(".repository.owner.login")
	repoNameQuery  = mustParseQuery(".repository.name")
)

func mustParseQuery(q string) *gojq.Query {
	query, err := gojq.Parse(q)
	if err != nil {
		panic(fmt.Sprintf("parsing jq query %q failed: %s", q, err))
	}

	return query
}

// Env is the GitHub Actions environment of the running step.
type Env struct {
	action *githubactions.Action
	ghCtx  *githubactions.GitHubContext
	logger *zap.Logger
}

func New(action *githubactions.Action) *Env {
	return &Env{
		action: action,
		logger: zap.L().Named(loggerName),
	}
}

// SyncRequest reads the sync inputs.
// If a required input is missing a *syncerr.ConfigurationError is returned.
// The github token is registered as secret and masked in the step log.
func (e *Env) SyncRequest() (*syncbranch.SyncRequest, error) {
	req := syncbranch.SyncRequest{
		SourceRef:    e.action.GetInput(InputSource),
		TargetBranch: e.action.GetInput(InputTarget),
		Credential:   e.action.GetInput(InputGithubToken),
		WebhookURL:   e.action.GetInput(InputWebhookURL),
	}

	if req.Credential != "" {
		e.action.AddMask(req.Credential)
	}

	if req.WebhookURL != "" {
		e.action.AddMask(req.WebhookURL)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return &req, nil
}

func (e *Env) githubContext() (*githubactions.GitHubContext, error) {
	if e.ghCtx != nil {
		return e.ghCtx, nil
	}

	ghCtx, err := e.action.Context()
	if err != nil {
		return nil, fmt.Errorf("reading github actions context failed: %w", err)
	}

	e.ghCtx = ghCtx

	return ghCtx, nil
}

// RepositoryContext returns the repository and commit the workflow runs for.
// Owner and repository name are read from the event payload, if it does not
// contain them, GITHUB_REPOSITORY is used.
func (e *Env) RepositoryContext(ctx context.Context) (*syncbranch.RepositoryContext, error) {
	ghCtx, err := e.githubContext()
	if err != nil {
		return nil, err
	}

	var result syncbranch.RepositoryContext

	if len(ghCtx.Event) > 0 {
		result.Owner, err = queryString(ctx, repoOwnerQuery, ghCtx.Event)
		if err != nil {
			return nil, fmt.Errorf("reading repository owner from event payload failed: %w", err)
		}

		result.Name, err = queryString(ctx, repoNameQuery, ghCtx.Event)
		if err != nil {
			return nil, fmt.Errorf("reading repository name from event payload failed: %w", err)
		}
	}

	if result.Owner == "" || result.Name == "" {
		e.logger.Debug(
			"event payload does not contain the repository, falling back to GITHUB_REPOSITORY",
			logfields.Event("repository_from_env"),
			zap.String("github_repository", ghCtx.Repository),
		)

		owner, name, found := strings.Cut(ghCtx.Repository, "/")
		if !found || owner == "" || name == "" {
			return nil, &syncerr.ConfigurationError{
				Input:  "GITHUB_REPOSITORY",
				Reason: fmt.Sprintf("%q is not in the format <owner>/<name>", ghCtx.Repository),
			}
		}

		result.Owner = owner
		result.Name = name
	}

	result.CommitSHA = ghCtx.SHA
	if result.CommitSHA == "" {
		return nil, syncerr.NewMissingInputError("GITHUB_SHA")
	}

	return &result, nil
}

// APIURL returns the URL of the GitHub REST API of the workflow run.
func (e *Env) APIURL() (string, error) {
	ghCtx, err := e.githubContext()
	if err != nil {
		return "", err
	}

	return ghCtx.APIURL, nil
}

// SetOutput sets a step output.
func (e *Env) SetOutput(name, value string) {
	e.action.SetOutput(name, value)
}

// Fail reports err as error annotation of the step.
func (e *Env) Fail(err error) {
	e.action.Errorf("%s", err)
}

// queryString runs q on v and returns the result as string.
// If the query yields null or nothing, an empty string is returned.
func queryString(ctx context.Context, q *gojq.Query, v map[string]any) (string, error) {
	iter := q.RunWithContext(ctx, v)

	res, ok := iter.Next()
	if !ok {
		return "", nil
	}

	switch val := res.(type) {
	case error:
		return "", val
	case nil:
		return "", nil
	case string:
		return val, nil
	default:
		return "", fmt.Errorf("query %q returned %T, expected string", q.String(), res)
	}
}
