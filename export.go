package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/export"
)

func exportCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Export.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	destPath := args.Export.Dest

	startTime := time.Now()
	logger.Info().Str("dest", destPath).Msg("starting export")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Str("dest", destPath).Float64("seconds", tookSeconds).Msg("export cancelled")
		} else {
			logger.Info().Str("dest", destPath).Float64("seconds", tookSeconds).Msg("export done")
		}
	}()

	ws, err := openWorkspace(args.Export.Workspace, logger, args.Export.DryRun)
	if err != nil {
		return err
	}

	opts := []export.Option{
		export.WithDryRun(args.Export.DryRun),
		export.WithPathPrefix(args.Export.Path),
		export.WithOverwrite(args.Export.Overwrite),
	}

	if args.Export.Archive {
		_, err = export.ToArchive(ctx, ws.store, ws.db, destPath, logger, opts...)
		return err
	}
	_, err = export.ToDirectory(ctx, ws.store, ws.db, destPath, logger, opts...)
	return err
}
