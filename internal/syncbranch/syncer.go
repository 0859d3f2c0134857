package syncbranch

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"text/template"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/simplesurance/syncbranches/internal/githubclt"
	"github.com/simplesurance/syncbranches/internal/logfields"
	"github.com/simplesurance/syncbranches/internal/notify"
	"github.com/simplesurance/syncbranches/internal/syncerr"
)

const loggerName = "syncbranch"

const (
	OutputPullRequestURL    = "PULL_REQUEST_URL"
	OutputPullRequestNumber = "PULL_REQUEST_NUMBER"
)

const (
	DefaultTitleTemplate = "sync: {{ .Target }} with {{ .Source }}"
	DefaultBodyTemplate  = "sync-branches: syncing {{ .Target }} with {{ .Source }}"
)

//go:generate mockgen -destination=mocks/syncbranch.go -package=mocks . GithubClient,Notifier,OutputWriter

type GithubClient interface {
	LookupBranch(ctx context.Context, owner, repo, branch string) (githubclt.BranchStatus, error)
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) error
	ListPullRequests(ctx context.Context, owner, repo string) githubclt.PRIterator
	CreatePullRequest(ctx context.Context, owner, repo string, pr *githubclt.NewPullRequest) (*githubclt.PullRequest, error)
}

// Notifier delivers status messages to a chat channel.
type Notifier interface {
	Notify(ctx context.Context, msg *notify.Message) error
}

// OutputWriter sets outputs of the running CI step.
type OutputWriter interface {
	SetOutput(name, value string)
}

// SyncRequest are the inputs of a synchronization run.
type SyncRequest struct {
	// SourceRef is the fully-qualified ref that was pushed, e.g.
	// refs/heads/develop.
	SourceRef string
	// TargetBranch is the name of the branch that is synced.
	TargetBranch string
	// Credential is the github API token.
	Credential string
	// WebhookURL is the slack incoming webhook URL, notifications are
	// disabled when it is empty.
	WebhookURL string
}

// Validate returns a *syncerr.ConfigurationError if a required field is
// empty.
func (r *SyncRequest) Validate() error {
	if r.SourceRef == "" {
		return syncerr.NewMissingInputError("source")
	}

	if ShortBranchName(r.SourceRef) == "" {
		return &syncerr.ConfigurationError{Input: "source", Reason: "ref does not contain a branch name"}
	}

	if r.TargetBranch == "" {
		return syncerr.NewMissingInputError("target")
	}

	if r.Credential == "" {
		return syncerr.NewMissingInputError("github_token")
	}

	return nil
}

// RepositoryContext identifies the repository and commit the run was
// triggered for.
type RepositoryContext struct {
	Owner     string
	Name      string
	CommitSHA string
}

func (r *RepositoryContext) String() string {
	return fmt.Sprintf("%s/%s@%s", r.Owner, r.Name, r.CommitSHA)
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome is the result of a synchronization run.
type Outcome struct {
	Status             Status
	SyncBranch         string
	PullRequestURL     string
	PullRequestNumber  int
	BranchCreated      bool
	PullRequestCreated bool
}

// templateData is passed to the pull request title and body templates.
type templateData struct {
	// Source is the short name of the source branch.
	Source     string
	SourceRef  string
	Target     string
	SyncBranch string
	Repository string
	Commit     string
}

// Syncer ensures that a sync branch and a pull request from it into the
// target branch exist.
type Syncer struct {
	branches     *BranchEnsurer
	pullRequests *PullRequestReconciler
	notifier     Notifier
	output       OutputWriter

	titleTemplate string
	bodyTemplate  string
	title         *template.Template
	body          *template.Template

	metricsRegisterer prometheus.Registerer
	metrics           *metricCollector

	logger *zap.Logger
}

type Option func(*Syncer)

// WithTitleTemplate sets the text/template that renders the title of created
// pull requests.
func WithTitleTemplate(tmpl string) Option {
	return func(s *Syncer) {
		if tmpl != "" {
			s.titleTemplate = tmpl
		}
	}
}

// WithBodyTemplate sets the text/template that renders the body of created
// pull requests.
func WithBodyTemplate(tmpl string) Option {
	return func(s *Syncer) {
		if tmpl != "" {
			s.bodyTemplate = tmpl
		}
	}
}

// WithMetricsRegisterer registers the metrics of the Syncer at reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *Syncer) {
		s.metricsRegisterer = reg
	}
}

func NewSyncer(clt GithubClient, notifier Notifier, output OutputWriter, opts ...Option) (*Syncer, error) {
	s := Syncer{
		branches:      NewBranchEnsurer(clt),
		pullRequests:  NewPullRequestReconciler(clt),
		notifier:      notifier,
		output:        output,
		titleTemplate: DefaultTitleTemplate,
		bodyTemplate:  DefaultBodyTemplate,
		logger:        zap.L().Named(loggerName),
	}

	for _, o := range opts {
		o(&s)
	}

	if s.metricsRegisterer == nil {
		s.metricsRegisterer = prometheus.NewRegistry()
	}
	s.metrics = newMetricCollector(s.metricsRegisterer)

	var err error

	s.title, err = template.New("title").Option("missingkey=error").Parse(s.titleTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing pull request title template failed: %w", err)
	}

	s.body, err = template.New("body").Option("missingkey=error").Parse(s.bodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing pull request body template failed: %w", err)
	}

	return &s, nil
}

// Run ensures the sync branch for the commit of repo and a pull request from
// it into the target branch exist.
// On success the pull request URL and number are written to the outputs and a
// success notification is sent.
// When creating the branch or pull request fails, a failure notification is
// sent and the error is returned together with an Outcome in failure state.
// Failed notifications are logged and do not change the result.
func (s *Syncer) Run(ctx context.Context, req *SyncRequest, repo *RepositoryContext) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	defer func() { s.metrics.ObserveRunDuration(time.Since(startTime)) }()

	source := ShortBranchName(req.SourceRef)
	syncBranch := SyncBranchName(req.TargetBranch, req.SourceRef, repo.CommitSHA)

	logger := s.logger.With(
		logfields.RepositoryOwner(repo.Owner),
		logfields.Repository(repo.Name),
		logfields.SourceRef(req.SourceRef),
		logfields.BaseBranch(req.TargetBranch),
		logfields.HeadBranch(syncBranch),
		logfields.Commit(repo.CommitSHA),
	)

	logger.Info(fmt.Sprintf("making a pull request for %s from %s", req.TargetBranch, req.SourceRef))

	outcome := Outcome{SyncBranch: syncBranch}

	pr, err := s.sync(ctx, req, repo, syncBranch, &outcome)
	if err != nil {
		outcome.Status = StatusFailure
		s.metrics.RunsInc(StatusFailure)

		logger.Error("syncing branches failed", logEventSyncFailed, zap.Error(err))

		s.notify(ctx, logger, &notify.Message{
			Repository: repo.Name,
			Source:     source,
			Target:     req.TargetBranch,
			Status:     notify.StatusFailure,
		})

		return &outcome, err
	}

	outcome.Status = StatusSuccess
	outcome.PullRequestURL = pr.HTMLURL
	outcome.PullRequestNumber = pr.Number
	s.metrics.RunsInc(StatusSuccess)

	s.output.SetOutput(OutputPullRequestURL, pr.HTMLURL)
	s.output.SetOutput(OutputPullRequestNumber, strconv.Itoa(pr.Number))

	s.notify(ctx, logger, &notify.Message{
		Repository:     repo.Name,
		Source:         source,
		Target:         req.TargetBranch,
		PullRequestURL: pr.HTMLURL,
		Status:         notify.StatusSuccess,
	})

	return &outcome, nil
}

func (s *Syncer) sync(ctx context.Context, req *SyncRequest, repo *RepositoryContext, syncBranch string, outcome *Outcome) (*githubclt.PullRequest, error) {
	created, err := s.branches.Ensure(ctx, repo, syncBranch)
	if err != nil {
		return nil, err
	}

	outcome.BranchCreated = created
	if created {
		s.metrics.BranchesCreatedInc()
	}

	data := templateData{
		Source:     ShortBranchName(req.SourceRef),
		SourceRef:  req.SourceRef,
		Target:     req.TargetBranch,
		SyncBranch: syncBranch,
		Repository: repo.Name,
		Commit:     repo.CommitSHA,
	}

	title, err := render(s.title, &data)
	if err != nil {
		return nil, fmt.Errorf("rendering pull request title failed: %w", err)
	}

	body, err := render(s.body, &data)
	if err != nil {
		return nil, fmt.Errorf("rendering pull request body failed: %w", err)
	}

	pr, created, err := s.pullRequests.Reconcile(ctx, repo, syncBranch, req.TargetBranch, title, body)
	if err != nil {
		return nil, err
	}

	outcome.PullRequestCreated = created
	if created {
		s.metrics.PullRequestsCreatedInc()
	}

	return pr, nil
}

func (s *Syncer) notify(ctx context.Context, logger *zap.Logger, msg *notify.Message) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.metrics.NotificationsFailedInc()

		logger.Warn(
			"sending notification failed",
			logEventNotificationFailed,
			zap.String("notification_status", string(msg.Status)),
			zap.Error(err),
		)
	}
}

func render(tmpl *template.Template, data *templateData) (string, error) {
	var buf bytes.Buffer

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
