package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/cas"
	"github.com/ashllll/loganalyzer/fileutils"
	"github.com/ashllll/loganalyzer/metadata"
)

const indexFileName = "index.db"

// workspace bundles the two stores living under one workspace directory:
// the content-addressable object store and the metadata index.
type workspace struct {
	dir   string
	store *cas.Store
	db    *metadata.Database
}

func openWorkspace(dir string, logger zerolog.Logger, dryRun bool) (*workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create workspace: %w", err)
	}
	if err := fileutils.VerifyWritable(dir); err != nil {
		return nil, fmt.Errorf("workspace must be writable: %w", err)
	}

	store, err := cas.New(dir, logger)
	if err != nil {
		return nil, err
	}

	dbCli, err := newSQLite(filepath.Join(dir, indexFileName), logger)
	if err != nil {
		return nil, fmt.Errorf("could not open index: %w", err)
	}

	return &workspace{
		dir:   dir,
		store: store,
		db: &metadata.Database{
			Cli:    dbCli,
			Logger: logger,
			DryRun: dryRun,
		},
	}, nil
}
