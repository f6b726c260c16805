package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

func validateCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	startTime := time.Now()
	logger.Info().Msg("starting validation")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("validation cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("validation done")
		}
	}()

	ws, err := openWorkspace(args.Validate.Workspace, logger, false)
	if err != nil {
		return err
	}

	invalid, err := ws.db.Validate(ctx, ws.store.Exists)
	if err != nil {
		return err
	}

	total, err := ws.db.CountFiles(ctx)
	if err != nil {
		return err
	}

	if len(invalid) > 0 {
		return fmt.Errorf("%d of %d indexed files are missing from the content store", len(invalid), total)
	}

	logger.Info().Int64("files", total).Msg("all indexed files have stored content")
	return nil
}
