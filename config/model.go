package config

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/extract"
)

// Config is the workspace configuration file: extraction policy overrides
// plus the sources the daemon imports on schedule.
type Config struct {
	Policy  Policy         `json:"policy,omitempty"`
	Sources []ImportSource `json:"sources,omitempty"`
}

// Policy overrides the engine's extraction limits. Zero values keep the
// built-in defaults.
type Policy struct {
	MaxDepth             int          `json:"max_depth,omitempty"`
	MaxCompressionRatio  float64      `json:"max_compression_ratio,omitempty"`
	NestedScoreThreshold float64      `json:"nested_score_threshold,omitempty"`
	MaxFileSize          SizeArgument `json:"max_file_size,omitempty"`
	PathMaxLength        int          `json:"path_max_length,omitempty"`
	CheckpointFiles      int          `json:"checkpoint_files,omitempty"`
	CheckpointBytes      SizeArgument `json:"checkpoint_bytes,omitempty"`
	Workers              int          `json:"workers,omitempty"`
}

// Options renders the policy as engine options, emitting only the fields
// that were actually set.
func (p Policy) Options() []extract.Option {
	var opts []extract.Option
	if p.MaxDepth > 0 {
		opts = append(opts, extract.WithMaxDepth(p.MaxDepth))
	}
	if p.MaxCompressionRatio > 0 {
		opts = append(opts, extract.WithMaxCompressionRatio(p.MaxCompressionRatio))
	}
	if p.NestedScoreThreshold > 0 {
		opts = append(opts, extract.WithNestedScoreThreshold(p.NestedScoreThreshold))
	}
	if p.MaxFileSize.Size > 0 {
		opts = append(opts, extract.WithMaxFileBytes(p.MaxFileSize.Size))
	}
	if p.PathMaxLength > 0 {
		opts = append(opts, extract.WithPathBudget(p.PathMaxLength, 0))
	}
	if p.CheckpointFiles > 0 || p.CheckpointBytes.Size > 0 {
		files := p.CheckpointFiles
		if files <= 0 {
			files = extract.DefaultCheckpointFileInterval
		}
		bytes := p.CheckpointBytes.Size
		if bytes <= 0 {
			bytes = extract.DefaultCheckpointByteInterval
		}
		opts = append(opts, extract.WithCheckpointIntervals(files, bytes))
	}
	if p.Workers > 0 {
		opts = append(opts, extract.WithWorkers(p.Workers))
	}
	return opts
}

// ImportSource is one directory the daemon imports on a cron schedule.
type ImportSource struct {
	SourceDir   string `json:"source_dir"`
	VirtualRoot string `json:"virtual_root,omitempty"`
	Enable      bool   `json:"enable"`
	Schedule    string `json:"cron"`
}

// Root returns the virtual root imports from this source land under,
// defaulting to the source directory's base name.
func (s ImportSource) Root() string {
	if s.VirtualRoot != "" {
		return s.VirtualRoot
	}
	return filepath.Base(s.SourceDir)
}

func (s ImportSource) MarshalZerologObject(e *zerolog.Event) {
	e.Str("source_dir", s.SourceDir)
	e.Str("virtual_root", s.Root())
	e.Bool("enable", s.Enable)
	e.Str("schedule", s.Schedule)
}
