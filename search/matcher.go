package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
	"github.com/dlclark/regexp2"
)

// matchTimeout bounds backtracking on pathological patterns so one hostile
// regex cannot stall a worker.
const matchTimeout = 5 * time.Second

// matcher evaluates a compiled query against single lines. All and-terms
// fold into one lookahead pattern evaluated in a single pass; or-literals
// are matched with an Aho-Corasick automaton so the line is scanned once no
// matter how many literals the query carries.
type matcher struct {
	andPattern *regexp2.Regexp
	andTexts   []string

	orExactTrie   *ahocorasick.Trie
	orExactTexts  []string
	orFoldedTrie  *ahocorasick.Trie
	orFoldedTexts []string

	orRegexes []orRegex

	hasOr bool
}

type orRegex struct {
	re   *regexp2.Regexp
	text string
}

func newMatcher(terms []Term) (*matcher, error) {
	m := &matcher{}

	var lookaheads []string
	var exactLiterals, foldedLiterals []string

	for _, term := range terms {
		switch {
		case term.Op == OpAnd:
			lookaheads = append(lookaheads, lookahead(term))
			m.andTexts = append(m.andTexts, term.Text)
		case term.IsRegex:
			re, err := regexp2.Compile(orientation(term), regexp2.None)
			if err != nil {
				return nil, fmt.Errorf("invalid regex %q: %w", term.Text, err)
			}
			re.MatchTimeout = matchTimeout
			m.orRegexes = append(m.orRegexes, orRegex{re: re, text: term.Text})
		case term.CaseSensitive:
			exactLiterals = append(exactLiterals, term.Text)
			m.orExactTexts = append(m.orExactTexts, term.Text)
		default:
			foldedLiterals = append(foldedLiterals, strings.ToLower(term.Text))
			m.orFoldedTexts = append(m.orFoldedTexts, term.Text)
		}
	}

	if len(lookaheads) > 0 {
		pattern := strings.Join(lookaheads, "")
		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("could not compile query: %w", err)
		}
		re.MatchTimeout = matchTimeout
		m.andPattern = re
	}
	if len(exactLiterals) > 0 {
		m.orExactTrie = ahocorasick.NewTrieBuilder().AddStrings(exactLiterals).Build()
	}
	if len(foldedLiterals) > 0 {
		m.orFoldedTrie = ahocorasick.NewTrieBuilder().AddStrings(foldedLiterals).Build()
	}
	m.hasOr = m.orExactTrie != nil || m.orFoldedTrie != nil || len(m.orRegexes) > 0

	return m, nil
}

// lookahead renders one and-term as a zero-width assertion, so N terms
// become one pattern requiring all of them anywhere on the line.
func lookahead(term Term) string {
	body := term.Text
	if !term.IsRegex {
		body = regexp.QuoteMeta(body)
	}
	if !term.CaseSensitive {
		body = "(?i:" + body + ")"
	}
	return "(?=.*" + body + ")"
}

func orientation(term Term) string {
	if term.CaseSensitive {
		return term.Text
	}
	return "(?i:" + term.Text + ")"
}

// matchLine reports whether the line satisfies the query and which term
// texts matched it.
func (m *matcher) matchLine(line string) (bool, []string) {
	if m.andPattern != nil {
		ok, err := m.andPattern.MatchString(line)
		if err != nil || !ok {
			return false, nil
		}
	}

	var matched []string
	if m.orExactTrie != nil {
		for _, hit := range m.orExactTrie.MatchString(line) {
			matched = appendUnique(matched, m.orExactTexts[hit.Pattern()])
		}
	}
	if m.orFoldedTrie != nil {
		for _, hit := range m.orFoldedTrie.MatchString(strings.ToLower(line)) {
			matched = appendUnique(matched, m.orFoldedTexts[hit.Pattern()])
		}
	}
	for _, or := range m.orRegexes {
		if ok, err := or.re.MatchString(line); err == nil && ok {
			matched = appendUnique(matched, or.text)
		}
	}

	if m.hasOr && len(matched) == 0 {
		return false, nil
	}
	return true, append(append([]string{}, m.andTexts...), matched...)
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
