package extract

import (
	"fmt"
	"strings"
)

// Security violation kinds.
const (
	ViolationPathTraversal    = "path_traversal"
	ViolationCompressionRatio = "compression_ratio"
	ViolationNestedArchives   = "nested_archives"
	ViolationFileSize         = "file_size"
)

// SecurityError marks a hard security stop: the offending branch is halted
// regardless of how lenient other policies are.
type SecurityError struct {
	Violation string
	Path      string
	Detail    string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security violation (%s) at %s: %s", e.Violation, e.Path, e.Detail)
}

// hasTraversal reports whether a slash-separated archive entry name contains
// a parent-directory component. Such entries could escape the workspace root
// and are rejected outright.
func hasTraversal(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// bombGuard tracks the running extracted-size-to-compressed-size ratio of
// one archive. The guard only trips once enough bytes have been extracted to
// make the ratio meaningful, so tiny highly-compressible archives pass.
type bombGuard struct {
	archivePath    string
	compressedSize int64
	maxRatio       float64
	floorBytes     int64
	extracted      int64
}

func newBombGuard(archivePath string, compressedSize int64, maxRatio float64, floorBytes int64) *bombGuard {
	if compressedSize < 1 {
		compressedSize = 1
	}
	return &bombGuard{
		archivePath:    archivePath,
		compressedSize: compressedSize,
		maxRatio:       maxRatio,
		floorBytes:     floorBytes,
	}
}

// addExtracted accumulates extracted bytes and returns a SecurityError when
// the configured ratio is exceeded.
func (g *bombGuard) addExtracted(n int64) error {
	g.extracted += n
	if g.extracted < g.floorBytes {
		return nil
	}

	ratio := float64(g.extracted) / float64(g.compressedSize)
	if ratio > g.maxRatio {
		return &SecurityError{
			Violation: ViolationCompressionRatio,
			Path:      g.archivePath,
			Detail:    fmt.Sprintf("ratio %.1f exceeds limit %.1f", ratio, g.maxRatio),
		}
	}
	return nil
}

// checkNestedScore guards against archive-of-archives bombs: each level
// multiplies the branch score by its child archive count, so adversarial
// exponential fan-out is caught long before the depth limit.
func checkNestedScore(score float64, threshold float64, path string) error {
	if score > threshold {
		return &SecurityError{
			Violation: ViolationNestedArchives,
			Path:      path,
			Detail:    fmt.Sprintf("nested archive score %.0f exceeds limit %.0f", score, threshold),
		}
	}
	return nil
}
