package extract

import "github.com/rs/zerolog"

// WarningCategory is a closed set so callers can handle every case
// exhaustively.
type WarningCategory int

const (
	DepthLimitReached WarningCategory = iota
	PathShortened
	SecurityEvent
	ArchiveError
	FileSkipped
	PathResolutionError
)

func (c WarningCategory) String() string {
	switch c {
	case DepthLimitReached:
		return "depth_limit_reached"
	case PathShortened:
		return "path_shortened"
	case SecurityEvent:
		return "security_event"
	case ArchiveError:
		return "archive_error"
	case FileSkipped:
		return "file_skipped"
	case PathResolutionError:
		return "path_resolution_error"
	default:
		return "unknown"
	}
}

// Warning describes one recoverable problem encountered during an extraction
// run. Warnings live only in the run's Result; they are never persisted.
type Warning struct {
	Message  string
	FilePath string
	Category WarningCategory
}

func (w Warning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("category", w.Category.String())
	e.Str("message", w.Message)
	if w.FilePath != "" {
		e.Str("path", w.FilePath)
	}
}
