package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/config"
	"github.com/ashllll/loganalyzer/extract"
	"github.com/ashllll/loganalyzer/fileutils"
	"github.com/ashllll/loganalyzer/scheduler"
)

func daemonCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Daemon.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg, err := config.LoadFromFile(args.Daemon.Config)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	ws, err := openWorkspace(args.Daemon.Workspace, logger, args.Daemon.DryRun)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	if err := addImportJobsFromConfig(ctx, sched, cfg, ws, logger, args.Daemon.DryRun); err != nil {
		return fmt.Errorf("could not add import jobs: %w", err)
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	startConfigFileWatcher(ctx, args.Daemon.Config, logger, ticker, func(cfg *config.Config) {
		sched.RemoveJobs()
		if err := addImportJobsFromConfig(ctx, sched, cfg, ws, logger, args.Daemon.DryRun); err != nil {
			logger.Error().Err(err).Msg("failed to add import jobs")
		}
	})

	sched.Start()
	defer sched.Stop()

	<-ctx.Done()

	return nil
}

func addImportJobsFromConfig(
	ctx context.Context,
	sched *scheduler.Scheduler,
	cfg *config.Config,
	ws *workspace,
	logger zerolog.Logger,
	dryRun bool,
) error {
	sourceDirs := make(map[string]struct{})

	for _, source := range cfg.Sources {
		if _, ok := sourceDirs[source.SourceDir]; ok {
			logger.Warn().Str("source", source.SourceDir).Msg("skipping duplicate source")
			continue
		}
		sourceDirs[source.SourceDir] = struct{}{}

		if !source.Enable {
			logger.Info().Str("source", source.SourceDir).Msg("skipping disabled import source")
			continue
		}

		job := &importJob{
			ctx:        ctx,
			sourcePath: source.SourceDir,
			root:       source.Root(),
			opts:       importJobOptions(cfg, dryRun),
			ws:         ws,
			logger:     logger,
		}
		if err := sched.AddImportJob(source.Schedule, job); err != nil {
			logger.Error().Err(err).Str("source", source.SourceDir).Msg("could not add import job")
			continue
		}

		logger.Info().
			Object("source", source).
			Msg("added import job")
	}
	return nil
}

func importJobOptions(cfg *config.Config, dryRun bool) []extract.Option {
	opts := cfg.Policy.Options()
	if dryRun {
		opts = append(opts, extract.WithDryRun(true))
	}
	return opts
}

func startConfigFileWatcher(ctx context.Context, cfgPath string, logger zerolog.Logger, ticker *time.Ticker, onChanged func(cfg *config.Config)) {
	logger.Info().Str("path", cfgPath).Msg("watching config file for changes")
	watcher, err := fileutils.WatchFile(ctx, cfgPath, when(ticker.C), func(err error) {
		logger.Error().Err(err).Msg("could not watch config file")
	})
	if err != nil {
		logger.Error().Err(err).Msg("could not watch config file")
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-watcher:
				logger.Info().Str("path", cfgPath).Msg("config file changed, reloading")

				cfg, err := config.LoadFromFile(cfgPath)
				if err != nil {
					logger.Error().Err(err).Msg("could not load config")
					break
				}

				onChanged(cfg)
			}
		}
	}()
}

func when[T any](ch <-chan T) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		for range ch {
			out <- struct{}{}
		}
	}()
	return out
}

// importJob runs one scheduled source import. Overlapping schedules are
// safe: re-imports of unchanged content are no-ops.
type importJob struct {
	ctx        context.Context
	sourcePath string
	root       string
	opts       []extract.Option
	ws         *workspace
	logger     zerolog.Logger
}

func (j *importJob) Run() {
	engine := extract.New(j.ws.store, j.ws.db, j.ws.dir, j.logger, j.opts...)
	result, err := engine.Extract(j.ctx, j.sourcePath, j.root)
	if err != nil {
		j.logger.Error().Err(err).Str("source", j.sourcePath).Msg("import job failed")
		return
	}
	j.logger.Info().Str("source", j.sourcePath).Object("result", result).Msg("import job done")
}
