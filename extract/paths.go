package extract

import (
	"path"
	"strings"

	"github.com/ashllll/loganalyzer/fileutils"
)

// pathPolicy bounds virtual path lengths. Paths over the trigger fraction of
// the budget are shortened with a digest so they never hit OS limits when
// exported back to disk.
type pathPolicy struct {
	maxLength int
	trigger   float64
}

func (p pathPolicy) triggerLength() int {
	return int(float64(p.maxLength) * p.trigger)
}

// resolve joins an entry name onto its parent's virtual path, normalizing
// separators and stripping any leading slashes. Returns the resolved path
// and whether it was shortened to fit the length budget.
func (p pathPolicy) resolve(parentVirtual, entryName string) (string, bool) {
	cleaned := path.Clean(strings.ReplaceAll(entryName, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")

	resolved := cleaned
	if parentVirtual != "" {
		resolved = parentVirtual + "/" + cleaned
	}

	if len(resolved) <= p.triggerLength() {
		return resolved, false
	}
	return p.shorten(parentVirtual, cleaned), true
}

// shorten keeps the base name readable and replaces the over-long middle
// with a 16-character digest of the original path, preserving uniqueness.
func (p pathPolicy) shorten(parentVirtual, cleaned string) string {
	base := path.Base(cleaned)
	digest := fileutils.ShortDigest(parentVirtual + "/" + cleaned)

	prefix := parentVirtual
	budget := p.triggerLength() - len(digest) - len(base) - 2 // two separators
	if budget < 0 {
		budget = 0
	}
	if len(prefix) > budget {
		prefix = prefix[:budget]
	}

	if prefix == "" {
		return digest + "/" + base
	}
	return prefix + "/" + digest + "/" + base
}
