package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/cas"
)

func gcCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Gc.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	startTime := time.Now()
	logger.Info().Msg("starting garbage collection")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("garbage collection cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("garbage collection done")
		}
	}()

	ws, err := openWorkspace(args.Gc.Workspace, logger, args.Gc.DryRun)
	if err != nil {
		return err
	}

	referenced, err := ws.db.ReferencedHashes(ctx)
	if err != nil {
		return err
	}

	stats, err := ws.store.Sweep(ctx, func(hash string) bool {
		_, ok := referenced[hash]
		return ok
	}, cas.WithSweepDryRun(args.Gc.DryRun))
	if err != nil {
		return err
	}

	if stats.Removed > 0 {
		logger.Info().
			Int("objects_removed", stats.Removed).
			Int64("bytes_freed", stats.BytesFreed).
			Msg("removed unreferenced objects")
	} else {
		logger.Info().Msg("no unreferenced objects found")
	}

	return nil
}
