package export

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/cas"
	"github.com/ashllll/loganalyzer/metadata"
)

var (
	errSkippedSameFile = errors.New("skipped same file")
	errSkippedModified = errors.New("skipped modified file")
)

// Stats summarizes one export.
type Stats struct {
	FilesExported int
	FilesSkipped  int
	BytesWritten  int64
}

func (s *Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Int("exported", s.FilesExported)
	e.Int("skipped", s.FilesSkipped)
	e.Int64("bytes", s.BytesWritten)
}

type Option func(o *options)

type options struct {
	dryRun     bool
	pathPrefix string
	overwrite  bool
}

func WithDryRun(dryRun bool) Option {
	return func(o *options) {
		o.dryRun = dryRun
	}
}

// WithPathPrefix exports only files whose virtual path starts with the
// prefix.
func WithPathPrefix(prefix string) Option {
	return func(o *options) {
		o.pathPrefix = prefix
	}
}

// WithOverwrite replaces existing destination files whose content differs.
// Without it, modified files are skipped with a warning.
func WithOverwrite(overwrite bool) Option {
	return func(o *options) {
		o.overwrite = overwrite
	}
}

// ToDirectory materializes indexed files under destDir, mirroring their
// virtual paths. Files already present with identical content are skipped.
func ToDirectory(ctx context.Context, store *cas.Store, db *metadata.Database, destDir string, logger zerolog.Logger, opts ...Option) (*Stats, error) {
	o := options{}
	for _, applyOpts := range opts {
		applyOpts(&o)
	}

	logger = logger.With().Str("dest", destDir).Logger()
	stats := &Stats{}
	defer func() {
		if ctx.Err() != nil {
			logger.Info().Object("stats", stats).Msg("cancelled export")
		} else if stats.FilesExported == 0 {
			logger.Info().Msg("no files exported")
		} else {
			logger.Info().Object("stats", stats).Msg("done exporting files")
		}
	}()

	for file := range db.IterFiles(ctx) {
		if ctx.Err() != nil {
			return stats, nil
		}
		if !strings.HasPrefix(file.VirtualPath, o.pathPrefix) {
			continue
		}

		size, err := exportFile(ctx, store, file, filepath.Join(destDir, filepath.FromSlash(file.VirtualPath)), o)
		switch {
		case errors.Is(err, errSkippedSameFile):
			logger.Debug().Object("file", file).Msg("file already present, skipping")
			stats.FilesSkipped++
		case errors.Is(err, errSkippedModified):
			logger.Warn().Object("file", file).Msg("existing file has different content, skipping")
			stats.FilesSkipped++
		case err != nil:
			logger.Warn().Err(err).Object("file", file).Msg("could not export file")
			stats.FilesSkipped++
		default:
			logger.Debug().Object("file", file).Int64("bytes", size).Msg("exported file")
			stats.FilesExported++
			stats.BytesWritten += size
		}
	}

	return stats, nil
}

func exportFile(ctx context.Context, store *cas.Store, file metadata.File, destPath string, o options) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	if existing, err := os.Open(destPath); err == nil {
		diskHash, _, hashErr := cas.HashReader(existing)
		existing.Close()
		if hashErr != nil {
			return 0, hashErr
		}
		if diskHash == file.Hash {
			return 0, errSkippedSameFile
		}
		if !o.overwrite {
			return 0, errSkippedModified
		}
	} else if !os.IsNotExist(err) {
		return 0, err
	}

	if o.dryRun {
		return file.Size, nil
	}

	obj, err := store.Open(file.Hash)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, err
	}
	w, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, err
	}

	size, err := io.Copy(w, obj)
	closeErr := w.Close()
	if err != nil {
		return size, err
	}
	if closeErr != nil {
		return size, closeErr
	}
	if !file.ModTime.IsZero() {
		_ = os.Chtimes(destPath, file.ModTime, file.ModTime)
	}
	return size, nil
}

// ToArchive writes the selected files into a single zip at destPath,
// preserving virtual paths as entry names. The archive file is only created
// once the first entry is written.
func ToArchive(ctx context.Context, store *cas.Store, db *metadata.Database, destPath string, logger zerolog.Logger, opts ...Option) (*Stats, error) {
	o := options{}
	for _, applyOpts := range opts {
		applyOpts(&o)
	}

	logger = logger.With().Str("archive", destPath).Logger()
	stats := &Stats{}

	var archive *zipFile
	if o.dryRun {
		archive = newNullZipFile()
	} else {
		archive = newLazyZipFile(destPath)
	}
	defer func() {
		if err := archive.Close(); err != nil {
			logger.Warn().Err(err).Msg("could not close export archive")
		}
	}()

	for file := range db.IterFiles(ctx) {
		if ctx.Err() != nil {
			break
		}
		if !strings.HasPrefix(file.VirtualPath, o.pathPrefix) {
			continue
		}

		obj, err := store.Open(file.Hash)
		if err != nil {
			logger.Warn().Err(err).Object("file", file).Msg("could not export file")
			stats.FilesSkipped++
			continue
		}

		w, err := archive.CreateHeader(&zip.FileHeader{
			Name:     file.VirtualPath,
			Method:   zip.Deflate,
			Modified: file.ModTime,
		})
		if err != nil {
			obj.Close()
			return stats, fmt.Errorf("could not create archive entry: %w", err)
		}

		size, err := io.Copy(w, obj)
		obj.Close()
		if err != nil {
			return stats, fmt.Errorf("could not write archive entry %s: %w", file.VirtualPath, err)
		}
		stats.FilesExported++
		stats.BytesWritten += size
	}

	if ctx.Err() != nil {
		logger.Info().Object("stats", stats).Msg("cancelled export")
	} else {
		logger.Info().Object("stats", stats).Msg("done exporting archive")
	}
	return stats, nil
}
