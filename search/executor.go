package search

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/cas"
	"github.com/ashllll/loganalyzer/metadata"
)

const (
	// DefaultMaxResults caps result sets when the query does not.
	DefaultMaxResults = 1000

	// Candidate cap when a path filter is used; plenty above any realistic
	// result budget.
	pathFilterCandidateLimit = 10_000

	// Lines are scanned with a growing buffer up to this size; longer lines
	// skip the rest of the file with a warning.
	maxLineBytes = 4 * 1024 * 1024

	snippetMaxBytes = 512
)

// Result is one matching line. ContentURI identifies the stored object the
// line came from, so callers can fetch the full content afterwards.
type Result struct {
	VirtualPath  string
	LineNumber   int
	Snippet      string
	MatchedTerms []string
	ContentURI   string
}

func (r Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("virtual_path", r.VirtualPath)
	e.Int("line", r.LineNumber)
	e.Strs("terms", r.MatchedTerms)
}

// Report is the outcome of one query: the matches plus how the search went.
type Report struct {
	Results       []Result
	FilesSearched int
	FilesSkipped  int
	Warnings      []string
	Truncated     bool
	Elapsed       time.Duration
}

// Engine runs boolean line queries over indexed content. It reads the
// metadata index and the object store; it never writes either.
type Engine struct {
	store   *cas.Store
	db      *metadata.Database
	logger  zerolog.Logger
	workers int
}

type Option func(e *Engine)

// WithWorkers bounds how many files are scanned concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func New(store *cas.Store, db *metadata.Database, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		db:      db,
		logger:  logger,
		workers: runtime.NumCPU(),
	}
	for _, applyOpts := range opts {
		applyOpts(e)
	}
	return e
}

// Search runs the query and returns every matching line up to the result
// budget. Files whose content is missing from the store are skipped with a
// warning rather than failing the query. Result order is stable: candidate
// file order first, line number second, regardless of worker scheduling.
func (e *Engine) Search(ctx context.Context, query Query) (*Report, error) {
	startTime := time.Now()

	if err := query.Validate(); err != nil {
		return nil, err
	}
	m, err := newMatcher(query.Terms)
	if err != nil {
		return nil, err
	}

	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	candidates, err := e.candidates(ctx, query.PathFilter)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With().Int("candidates", len(candidates)).Logger()
	logger.Info().Int("terms", len(query.Terms)).Str("path_filter", query.PathFilter).Msg("searching")

	type fileOutcome struct {
		results []Result
		warning string
		skipped bool
	}
	outcomes := make([]fileOutcome, len(candidates))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range e.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				file := candidates[i]
				results, err := e.scanFile(ctx, file, m)
				if err != nil {
					outcomes[i] = fileOutcome{
						warning: fmt.Sprintf("%s: %v", file.VirtualPath, err),
						skipped: true,
					}
					continue
				}
				outcomes[i] = fileOutcome{results: results}
			}
		}()
	}

	fed := 0
feed:
	for i := range candidates {
		select {
		case jobs <- i:
			fed++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	report := &Report{}
	// Candidates are fed in order, so only the first fed outcomes were ever
	// scanned; a cancelled feed leaves the rest unscanned and uncounted.
	for _, outcome := range outcomes[:fed] {
		if outcome.skipped {
			report.FilesSkipped++
			report.Warnings = append(report.Warnings, outcome.warning)
			logger.Warn().Str("reason", outcome.warning).Msg("skipped file")
			continue
		}
		report.FilesSearched++
		for _, result := range outcome.results {
			if len(report.Results) >= maxResults {
				report.Truncated = true
				break
			}
			report.Results = append(report.Results, result)
		}
	}
	report.Elapsed = time.Since(startTime)

	logger.Info().
		Int("results", len(report.Results)).
		Int("searched", report.FilesSearched).
		Int("skipped", report.FilesSkipped).
		Float64("seconds", report.Elapsed.Seconds()).
		Msg("search done")

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// candidates selects the files to scan, in stable virtual-path order. A
// path filter narrows them through the full-text index; otherwise every
// indexed file is a candidate.
func (e *Engine) candidates(ctx context.Context, pathFilter string) ([]metadata.File, error) {
	if pathFilter != "" {
		files, err := e.db.SearchFiles(ctx, pathFilter, pathFilterCandidateLimit)
		if err != nil {
			return nil, fmt.Errorf("path filter failed: %w", err)
		}
		return files, nil
	}

	var files []metadata.File
	for file := range e.db.IterFiles(ctx) {
		files = append(files, file)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return files, nil
}

func (e *Engine) scanFile(ctx context.Context, file metadata.File, m *matcher) ([]Result, error) {
	obj, err := e.store.Open(file.Hash)
	if errors.Is(err, cas.ErrNotFound) {
		return nil, fmt.Errorf("content %s missing from store", file.Hash)
	}
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	var results []Result
	scanner := bufio.NewScanner(obj)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		if lineNumber%1024 == 0 && ctx.Err() != nil {
			return results, ctx.Err()
		}

		line := scanner.Text()
		ok, terms := m.matchLine(line)
		if !ok {
			continue
		}
		results = append(results, Result{
			VirtualPath:  file.VirtualPath,
			LineNumber:   lineNumber,
			Snippet:      snippet(line),
			MatchedTerms: terms,
			ContentURI:   cas.URI(file.Hash),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan stopped at line %d: %w", lineNumber, err)
	}
	return results, nil
}

// snippet truncates a matched line at a rune boundary for display.
func snippet(line string) string {
	if len(line) <= snippetMaxBytes {
		return line
	}
	cut := snippetMaxBytes
	for cut > 0 && line[cut]&0xC0 == 0x80 {
		cut--
	}
	return line[:cut] + "..."
}
