package extract

import "runtime"

// Policy defaults. All of these are configuration, not hard-coded behavior;
// the config package overrides them from the workspace config file.
const (
	DefaultMaxDepth               = 10
	DefaultMaxCompressionRatio    = 100.0
	DefaultNestedScoreThreshold   = 1_000_000.0
	DefaultCompressionGuardFloor  = 64 * 1024
	DefaultMaxFileBytes           = int64(4) << 30
	DefaultPathMaxLength          = 4096
	DefaultPathShorteningTrigger  = 0.8
	DefaultCheckpointFileInterval = 100
	DefaultCheckpointByteInterval = int64(1) << 30
)

// DefaultWorkers caps extraction parallelism at half the CPUs to leave
// headroom for I/O.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()/2)
}

// ProgressFunc receives extraction progress. total is the number of entries
// discovered so far, not a final figure: nested archives add work as they
// are found.
type ProgressFunc func(processed, total int, currentPath string)

type Option func(o *options)

type options struct {
	maxDepth             int
	maxRatio             float64
	nestedScoreThreshold float64
	guardFloorBytes      int64
	maxFileBytes         int64
	pathMaxLength        int
	pathTrigger          float64
	checkpointFiles      int
	checkpointBytes      int64
	workers              int
	detector             Detector
	progress             ProgressFunc
	dryRun               bool
}

func defaultOptions() options {
	return options{
		maxDepth:             DefaultMaxDepth,
		maxRatio:             DefaultMaxCompressionRatio,
		nestedScoreThreshold: DefaultNestedScoreThreshold,
		guardFloorBytes:      DefaultCompressionGuardFloor,
		maxFileBytes:         DefaultMaxFileBytes,
		pathMaxLength:        DefaultPathMaxLength,
		pathTrigger:          DefaultPathShorteningTrigger,
		checkpointFiles:      DefaultCheckpointFileInterval,
		checkpointBytes:      DefaultCheckpointByteInterval,
		workers:              DefaultWorkers(),
		detector:             DetectorFunc(DetectKind),
	}
}

// WithMaxDepth bounds archive nesting. Entries below the limit are indexed;
// archives at the limit are skipped with a DepthLimitReached warning.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}

// WithMaxCompressionRatio sets the extracted:compressed ratio at which an
// archive is treated as a zip bomb.
func WithMaxCompressionRatio(ratio float64) Option {
	return func(o *options) {
		if ratio > 0 {
			o.maxRatio = ratio
		}
	}
}

// WithNestedScoreThreshold sets the archive-of-archives fan-out score limit.
func WithNestedScoreThreshold(threshold float64) Option {
	return func(o *options) {
		if threshold > 0 {
			o.nestedScoreThreshold = threshold
		}
	}
}

// WithCompressionGuardFloor sets the extracted byte count below which the
// ratio guard stays quiet.
func WithCompressionGuardFloor(bytes int64) Option {
	return func(o *options) {
		if bytes >= 0 {
			o.guardFloorBytes = bytes
		}
	}
}

// WithMaxFileBytes bounds the size of a single extracted entry.
func WithMaxFileBytes(bytes int64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.maxFileBytes = bytes
		}
	}
}

// WithPathBudget sets the virtual path length budget and the fraction of it
// at which shortening kicks in.
func WithPathBudget(maxLength int, trigger float64) Option {
	return func(o *options) {
		if maxLength > 0 {
			o.pathMaxLength = maxLength
		}
		if trigger > 0 && trigger <= 1 {
			o.pathTrigger = trigger
		}
	}
}

// WithCheckpointIntervals sets how often progress is persisted: every files
// entries or every bytes extracted, whichever comes first. Zero disables
// that trigger.
func WithCheckpointIntervals(files int, bytes int64) Option {
	return func(o *options) {
		o.checkpointFiles = files
		o.checkpointBytes = bytes
	}
}

// WithWorkers bounds how many independent archive branches extract in
// parallel.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithDetector overrides archive type detection. The engine trusts the
// detector's classification.
func WithDetector(d Detector) Option {
	return func(o *options) {
		if d != nil {
			o.detector = d
		}
	}
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithDryRun hashes and walks everything but writes neither content nor
// metadata.
func WithDryRun(dryRun bool) Option {
	return func(o *options) {
		o.dryRun = dryRun
	}
}
