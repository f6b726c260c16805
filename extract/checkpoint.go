package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/fileutils"
)

// Checkpoint records how far one archive's extraction has progressed so an
// interrupted run can resume without re-processing completed entries. One
// checkpoint file exists per in-progress archive, owned exclusively by the
// task extracting it, and is discarded on successful completion.
type Checkpoint struct {
	RunID             string              `json:"run_id"`
	ArchivePath       string              `json:"archive_path"`
	ArchiveHash       string              `json:"archive_hash"`
	ProcessedFiles    int                 `json:"processed_files"`
	TotalFiles        int                 `json:"total_files"`
	LastProcessedPath string              `json:"last_processed_path"`
	Processed         map[string]struct{} `json:"processed"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func newCheckpoint(runID, archivePath, archiveHash string) *Checkpoint {
	return &Checkpoint{
		RunID:       runID,
		ArchivePath: archivePath,
		ArchiveHash: archiveHash,
		Processed:   map[string]struct{}{},
	}
}

func (c *Checkpoint) markProcessed(virtualPath string) {
	c.Processed[virtualPath] = struct{}{}
	c.ProcessedFiles = len(c.Processed)
	c.LastProcessedPath = virtualPath
}

func (c *Checkpoint) isProcessed(virtualPath string) bool {
	_, ok := c.Processed[virtualPath]
	return ok
}

// checkpointer persists checkpoints as JSON files named after a digest of
// the archive's virtual path.
type checkpointer struct {
	dir          string
	fileInterval int
	byteInterval int64
	logger       zerolog.Logger
}

func newCheckpointer(dir string, fileInterval int, byteInterval int64, logger zerolog.Logger) *checkpointer {
	return &checkpointer{
		dir:          dir,
		fileInterval: fileInterval,
		byteInterval: byteInterval,
		logger:       logger,
	}
}

func (cp *checkpointer) path(archiveVirtualPath string) string {
	return filepath.Join(cp.dir, fileutils.ShortDigest(archiveVirtualPath)+".json")
}

// shouldWrite reports whether enough work has accumulated since the last
// checkpoint write.
func (cp *checkpointer) shouldWrite(filesSince int, bytesSince int64) bool {
	if cp.fileInterval <= 0 && cp.byteInterval <= 0 {
		return false
	}
	return (cp.fileInterval > 0 && filesSince >= cp.fileInterval) ||
		(cp.byteInterval > 0 && bytesSince >= cp.byteInterval)
}

// load returns the persisted checkpoint for an archive, or nil when none
// exists, it cannot be decoded, or it was written for different archive
// bytes. A discarded checkpoint just restarts that archive from scratch.
func (cp *checkpointer) load(archiveVirtualPath, archiveHash string) *Checkpoint {
	raw, err := os.ReadFile(cp.path(archiveVirtualPath))
	if err != nil {
		return nil
	}

	checkpoint := &Checkpoint{}
	if err := json.Unmarshal(raw, checkpoint); err != nil {
		cp.logger.Warn().Err(err).Str("archive", archiveVirtualPath).Msg("discarding corrupt checkpoint")
		_ = os.Remove(cp.path(archiveVirtualPath))
		return nil
	}
	if checkpoint.ArchiveHash != archiveHash {
		// The path now holds different content; the old processed set would
		// wrongly suppress entries of the replacement archive.
		cp.logger.Warn().Str("archive", archiveVirtualPath).Msg("discarding checkpoint for replaced archive content")
		_ = os.Remove(cp.path(archiveVirtualPath))
		return nil
	}
	if checkpoint.Processed == nil {
		checkpoint.Processed = map[string]struct{}{}
	}

	cp.logger.Info().
		Str("archive", archiveVirtualPath).
		Int("processed", checkpoint.ProcessedFiles).
		Msg("resuming from checkpoint")
	return checkpoint
}

func (cp *checkpointer) save(archiveVirtualPath string, checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("could not encode checkpoint: %w", err)
	}

	if err := os.MkdirAll(cp.dir, 0o755); err != nil {
		return fmt.Errorf("could not create checkpoint directory: %w", err)
	}

	tmpPath := cp.path(archiveVirtualPath) + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("could not write checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, cp.path(archiveVirtualPath)); err != nil {
		return fmt.Errorf("could not place checkpoint: %w", err)
	}
	return nil
}

func (cp *checkpointer) delete(archiveVirtualPath string) {
	if err := os.Remove(cp.path(archiveVirtualPath)); err != nil && !os.IsNotExist(err) {
		cp.logger.Warn().Err(err).Str("archive", archiveVirtualPath).Msg("could not remove checkpoint")
	}
}
