package cas

import (
	"fmt"
	"strings"
)

// URIScheme prefixes content identifiers handed across process boundaries.
// Any holder of a cas:// identifier can resolve content without knowing the
// physical storage layout.
const URIScheme = "cas://"

// URI returns the cas:// identifier for a content hash.
func URI(hash string) string {
	return URIScheme + hash
}

// ParseURI extracts the content hash from a cas:// identifier.
func ParseURI(uri string) (string, error) {
	hash, ok := strings.CutPrefix(uri, URIScheme)
	if !ok {
		return "", fmt.Errorf("%w: missing %s prefix in %q", ErrInvalidHash, URIScheme, uri)
	}
	if !ValidHash(hash) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return hash, nil
}
