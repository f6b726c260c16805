package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/config"
	"github.com/ashllll/loganalyzer/extract"
)

func importCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Import.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	srcPath := args.Import.Source

	startTime := time.Now()
	logger.Info().Str("source", srcPath).Msg("starting import")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Str("source", srcPath).Float64("seconds", tookSeconds).Msg("import cancelled")
		} else {
			logger.Info().Str("source", srcPath).Float64("seconds", tookSeconds).Msg("import done")
		}
	}()

	ws, err := openWorkspace(args.Import.Workspace, logger, args.Import.DryRun)
	if err != nil {
		return err
	}

	opts, err := importOptions(args)
	if err != nil {
		return err
	}

	root := args.Import.Root
	if root == "" {
		root = strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	}

	engine := extract.New(ws.store, ws.db, ws.dir, logger, opts...)
	result, err := engine.Extract(ctx, srcPath, root)
	if err != nil {
		return err
	}

	logger.Info().Object("result", result).Msg("import summary")
	for _, warning := range result.Warnings {
		logger.Warn().Object("warning", warning).Msg("import warning")
	}
	return nil
}

// importOptions folds the config file (if given) and the command line flags
// into engine options, flags taking precedence.
func importOptions(args Command) ([]extract.Option, error) {
	var opts []extract.Option

	if args.Import.Config != "" {
		cfg, err := config.LoadFromFile(args.Import.Config)
		if err != nil {
			return nil, fmt.Errorf("could not load config: %w", err)
		}
		opts = append(opts, cfg.Policy.Options()...)
	}

	if args.Import.MaxDepth > 0 {
		opts = append(opts, extract.WithMaxDepth(args.Import.MaxDepth))
	}
	if args.Import.MaxRatio > 0 {
		opts = append(opts, extract.WithMaxCompressionRatio(args.Import.MaxRatio))
	}
	if args.Import.MaxFileSize.Size > 0 {
		opts = append(opts, extract.WithMaxFileBytes(args.Import.MaxFileSize.Size))
	}
	if args.Import.Workers > 0 {
		opts = append(opts, extract.WithWorkers(args.Import.Workers))
	}
	if args.Import.DryRun {
		opts = append(opts, extract.WithDryRun(true))
	}

	return opts, nil
}
