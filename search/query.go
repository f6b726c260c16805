package search

import (
	"errors"
	"fmt"

	"github.com/dlclark/regexp2"
)

// Op decides how a term combines with the rest of the query.
type Op int

const (
	// OpAnd terms must all be present on a line.
	OpAnd Op = iota
	// OpOr terms form a pool of which at least one must be present.
	OpOr
)

func (o Op) String() string {
	if o == OpOr {
		return "or"
	}
	return "and"
}

// Term is one search criterion: a literal substring or a regular
// expression, combined with the other terms by its Op.
type Term struct {
	Text          string
	Op            Op
	CaseSensitive bool
	IsRegex       bool
}

// Query is a boolean line query over the indexed files. A line matches when
// every and-term matches it and, if any or-terms exist, at least one of
// them does.
type Query struct {
	Terms []Term

	// PathFilter narrows the candidate files with a full-text match over
	// their virtual paths before any content is read. Empty searches all
	// indexed files.
	PathFilter string

	// MaxResults caps the result set. Zero applies DefaultMaxResults.
	MaxResults int
}

// Validate rejects structurally broken queries before any file is opened.
func (q Query) Validate() error {
	if len(q.Terms) == 0 {
		return errors.New("query has no terms")
	}
	for _, term := range q.Terms {
		if term.Text == "" {
			return errors.New("query term is empty")
		}
		if term.IsRegex {
			if _, err := regexp2.Compile(term.Text, regexp2.None); err != nil {
				return fmt.Errorf("invalid regex %q: %w", term.Text, err)
			}
		}
	}
	return nil
}
