package metadata

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Database wraps the workspace's relational index. Writes are serialized
// through Lock and wrapped in transactions so a crash never leaves a
// half-populated unit of work.
type Database struct {
	Lock   sync.Mutex
	Cli    *gorm.DB
	Logger zerolog.Logger
	DryRun bool
}

// Migrate creates the files/archives tables, their indexes and the FTS5
// index with its sync triggers.
func Migrate(cli *gorm.DB) error {
	if err := cli.AutoMigrate(&File{}, &Archive{}); err != nil {
		return fmt.Errorf("could not migrate metadata schema: %w", err)
	}
	if err := initFTS(cli); err != nil {
		return fmt.Errorf("could not initialize full-text index: %w", err)
	}
	return nil
}
