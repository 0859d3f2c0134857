package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-githubactions"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/syncbranches/internal/actionenv"
	"github.com/simplesurance/syncbranches/internal/cfg"
	"github.com/simplesurance/syncbranches/internal/githubclt"
	"github.com/simplesurance/syncbranches/internal/logfields"
	"github.com/simplesurance/syncbranches/internal/metrics"
	"github.com/simplesurance/syncbranches/internal/notify"
	"github.com/simplesurance/syncbranches/internal/syncbranch"
	"github.com/simplesurance/syncbranches/internal/syncerr"
)

const appName = "syncbranches"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

const metricsPushTimeout = 10 * time.Second

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	DryRun      *bool
	ShowVersion *bool
}

var args arguments

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			"",
			"path to an optional syncbranches configuration file",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"do not create branches or pull requests, only log what would be done",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nCreate a pull request that syncs a target branch with a pushed source branch.\nInputs are read from the GitHub Actions environment.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	if *args.ConfigFile == "" {
		return cfg.Default()
	}

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration files", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func githubAPIURL(config *cfg.Config, env *actionenv.Env) (string, error) {
	if config.GithubAPIURL != "" {
		return config.GithubAPIURL, nil
	}

	return env.APIURL()
}

func pushMetrics(config *cfg.Config, reg *prometheus.Registry, repo *syncbranch.RepositoryContext) {
	ctx, cancelFn := context.WithTimeout(context.Background(), metricsPushTimeout)
	defer cancelFn()

	err := metrics.NewPusher(config.PrometheusPushgatewayURL, reg).
		Grouping("repository", repo.Owner+"/"+repo.Name).
		Push(ctx)
	if err != nil {
		logger.Warn(
			"pushing metrics failed",
			logfields.Event("metrics_push_failed"),
			zap.Error(err),
		)
		return
	}

	logger.Debug("metrics pushed", logfields.Event("metrics_pushed"))
}

func run(ctx context.Context, config *cfg.Config, env *actionenv.Env) error {
	req, err := env.SyncRequest()
	if err != nil {
		return err
	}

	repo, err := env.RepositoryContext(ctx)
	if err != nil {
		return err
	}

	apiURL, err := githubAPIURL(config, env)
	if err != nil {
		return err
	}

	logger.Info(
		"loaded configuration",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		logfields.SourceRef(req.SourceRef),
		logfields.BaseBranch(req.TargetBranch),
		logfields.RepositoryOwner(repo.Owner),
		logfields.Repository(repo.Name),
		logfields.Commit(repo.CommitSHA),
		zap.String("github_api_url", apiURL),
		zap.String("github_api_token", hide(req.Credential)),
		zap.String("webhook_url", hide(req.WebhookURL)),
		zap.String("log_format", config.LogFormat),
		zap.String("log_level", config.LogLevel),
		zap.String("http_client_timeout", config.HTTPClientTimeout),
		zap.String("prometheus_pushgateway_url", config.PrometheusPushgatewayURL),
		zap.Bool("dry_run", *args.DryRun),
	)

	githubClient, err := githubclt.New(
		req.Credential,
		githubclt.WithBaseURL(apiURL),
		githubclt.WithHTTPTimeout(config.HTTPTimeout()),
	)
	if err != nil {
		return err
	}

	var clt syncbranch.GithubClient = githubClient
	if *args.DryRun {
		clt = syncbranch.NewDryGithubClient(githubClient, logger)
	}

	notifier := notify.NewSlack(
		req.WebhookURL,
		notify.WithIconEmoji(config.NotificationIconEmoji),
	)

	reg := prometheus.NewRegistry()

	syncer, err := syncbranch.NewSyncer(
		clt,
		notifier,
		env,
		syncbranch.WithTitleTemplate(config.PullRequestTitle),
		syncbranch.WithBodyTemplate(config.PullRequestBody),
		syncbranch.WithMetricsRegisterer(reg),
	)
	if err != nil {
		return &syncerr.ConfigurationError{Input: "pull_request_title/pull_request_body", Reason: err.Error()}
	}

	if config.PrometheusPushgatewayURL != "" {
		defer pushMetrics(config, reg, repo)
	}

	outcome, err := syncer.Run(ctx, req, repo)
	if err != nil {
		return err
	}

	logger.Info(
		"sync finished",
		logfields.Event("sync_finished"),
		logfields.HeadBranch(outcome.SyncBranch),
		logfields.PullRequest(outcome.PullRequestNumber),
		logfields.PullRequestURL(outcome.PullRequestURL),
		zap.Bool("branch_created", outcome.BranchCreated),
		zap.Bool("pull_request_created", outcome.PullRequestCreated),
	)

	return nil
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		if sig != nil {
			logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
		}
		cancelFn()
	})

	env := actionenv.New(githubactions.New())

	if err := run(ctx, config, env); err != nil {
		logger.Error("sync failed", logfields.Event("sync_failed"), zap.Error(err))
		env.Fail(err)
		goodbye.Exit(ctx, 1)
	}

	goodbye.Exit(ctx, 0)
}
