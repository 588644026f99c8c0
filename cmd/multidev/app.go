package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/codesync"
	"github.com/n3tuk/multidev-lifecycle/internal/config"
	"github.com/n3tuk/multidev-lifecycle/internal/gitcli"
	"github.com/n3tuk/multidev-lifecycle/internal/health"
	"github.com/n3tuk/multidev-lifecycle/internal/logger"
	"github.com/n3tuk/multidev-lifecycle/internal/metadata"
	"github.com/n3tuk/multidev-lifecycle/internal/metrics"
	"github.com/n3tuk/multidev-lifecycle/internal/middleware"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/output"
	"github.com/n3tuk/multidev-lifecycle/internal/platform"
	"github.com/n3tuk/multidev-lifecycle/internal/scratch"
	"github.com/n3tuk/multidev-lifecycle/internal/sourcehost"
	"github.com/n3tuk/multidev-lifecycle/internal/workflow"
)

// app holds everything a single invocation needs. It is built once per
// command run and torn down by run.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	scratch  *scratch.Tracker
	platform *platform.Client
	github   *sourcehost.Client
	coord    *workflow.Coordinator
	out      *output.Renderer
}

// run loads configuration, builds the app, runs fn under a context
// cancelled by SIGINT or SIGTERM, and exports metrics on the way out.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log = log.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("command", cmd.Name()),
	)
	log.Debug("Starting multidev",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, log, format, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.scratch.Release(); err != nil {
			log.Warn("Failed to remove scratch directories", zap.Error(err))
		}
	}()

	err = fn(ctx, a)
	if ctx.Err() != nil && err != nil {
		log.Warn("Interrupted", zap.Error(err))
	}

	a.exportMetrics(cmd.Name())
	return err
}

func newApp(cfg *config.Config, log *zap.Logger, format output.Format, cmd *cobra.Command) (*app, error) {
	m := metrics.NewMetrics(cfg.MetricsNamespace, buildInfo())

	tracker, err := scratch.New("", log)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: middleware.Chain(http.DefaultTransport,
			middleware.MetricsMiddleware(m),
			middleware.LoggingMiddleware(log),
			middleware.UserAgentMiddleware("multidev/"+version),
		),
	}

	pc, err := platform.New(platform.Config{
		BaseURL:      cfg.PlatformURL,
		MachineToken: cfg.PlatformToken,
		HTTPClient:   httpClient,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create platform client: %w", err)
	}

	coord := workflow.NewCoordinator(pc, log, m)
	coord.Interval = cfg.WorkflowInterval
	coord.Timeout = cfg.WorkflowTimeout

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		scratch:  tracker,
		platform: pc,
		github: sourcehost.New(sourcehost.Config{
			BaseURL:    cfg.GitHubURL,
			Token:      cfg.GitHubToken,
			HTTPClient: httpClient,
			Logger:     log,
		}),
		coord: coord,
		out:   output.New(cmd.OutOrStdout(), format),
	}, nil
}

func (a *app) gitOptions() []gitcli.Option {
	return []gitcli.Option{
		gitcli.WithLogger(a.log),
		gitcli.WithRecorder(a.metrics.RecordGitCommand),
	}
}

func (a *app) repository(dir string) *gitcli.Repository {
	return gitcli.NewRepository(dir, a.gitOptions()...)
}

func (a *app) metadataStore() *metadata.Store {
	return metadata.NewStore(a.platform, metadata.SCP{Logger: a.log}, a.scratch, a.log,
		metadata.WithGitOptions(a.gitOptions()...))
}

func (a *app) pipeline() *codesync.Pipeline {
	return codesync.New(a.platform, a.coord, a.metadataStore(), a.log, a.metrics, codesync.Config{
		Remote:          a.cfg.GitRemote,
		ConvergeTimeout: a.cfg.WorkflowTimeout,
		GitOptions:      a.gitOptions(),
	})
}

// preflight verifies the platform credentials, plus any extra checks,
// before a command changes anything remotely.
func (a *app) preflight(ctx context.Context, extra ...health.Checker) error {
	manager := a.preflightManager(extra...)
	return manager.Run(ctx)
}

func (a *app) preflightManager(extra ...health.Checker) *health.Manager {
	manager := health.NewManager(a.log, a.cfg.HTTPTimeout)
	manager.Register(
		health.NewCredentialChecker("platform-token", a.cfg.PlatformToken, "set MULTIDEV_PLATFORM_TOKEN"),
		health.NewPlatformChecker(a.platform),
	)
	manager.Register(extra...)
	return manager
}

// setMode switches an environment's connection mode and waits for it.
func (a *app) setMode(ctx context.Context, site, env string, mode model.ConnectionMode) error {
	change, err := a.platform.SetConnectionMode(ctx, site, env, mode)
	if err != nil {
		return fmt.Errorf("setting %s.%s to %s mode: %w", site, env, mode, err)
	}
	return a.coord.Settle(ctx, change)
}

func (a *app) exportMetrics(command string) {
	a.metrics.Finish()

	if a.cfg.MetricsTextfile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			a.log.Warn("Failed to write metrics", zap.Error(err))
		}
	}

	if a.cfg.MetricsPushgateway != "" {
		// The run context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		grouping := map[string]string{"command": command}
		if err := a.metrics.Push(ctx, a.cfg.MetricsPushgateway, a.cfg.MetricsJob, grouping); err != nil {
			a.log.Warn("Failed to push metrics", zap.Error(err))
		}
	}
}

func outputFormat(cmd *cobra.Command) (output.Format, error) {
	flag := cmd.Flags().Lookup("format")
	if flag == nil {
		return output.FormatTable, nil
	}
	return output.ParseFormat(flag.Value.String())
}
