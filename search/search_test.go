package search_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/ashllll/loganalyzer/cas"
	"github.com/ashllll/loganalyzer/metadata"
	"github.com/ashllll/loganalyzer/search"
)

func setupSearch(t *testing.T, opts ...search.Option) (*search.Engine, *cas.Store, *metadata.Database) {
	t.Helper()

	store, err := cas.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, metadata.Migrate(gormDB))

	db := &metadata.Database{
		Cli:    gormDB,
		Logger: zerolog.Nop(),
	}

	return search.New(store, db, zerolog.Nop(), opts...), store, db
}

func indexFile(t *testing.T, store *cas.Store, db *metadata.Database, virtualPath, content string) {
	t.Helper()

	hash, err := store.StoreContent(context.Background(), []byte(content))
	require.NoError(t, err)

	_, err = db.InsertFile(context.Background(), &metadata.File{
		Hash:         hash,
		VirtualPath:  virtualPath,
		OriginalName: virtualPath,
		Size:         int64(len(content)),
		ModTime:      time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestSearchAndTerms(t *testing.T) {
	engine, store, db := setupSearch(t)
	indexFile(t, store, db, "logs/app.log",
		"error in connection\n"+
			"connection established\n"+
			"error without the other word\n"+
			"timeout error on connection\n")

	report, err := engine.Search(context.Background(), search.Query{
		Terms: []search.Term{
			{Text: "error", Op: search.OpAnd},
			{Text: "connection", Op: search.OpAnd},
		},
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Results[0].LineNumber)
	assert.Equal(t, 4, report.Results[1].LineNumber)
	assert.ElementsMatch(t, []string{"error", "connection"}, report.Results[0].MatchedTerms)
	assert.True(t, strings.HasPrefix(report.Results[0].ContentURI, "cas://"))
}

func TestSearchOrTerms(t *testing.T) {
	engine, store, db := setupSearch(t)
	indexFile(t, store, db, "logs/app.log",
		"fatal crash\n"+
			"all quiet\n"+
			"panic unwinding\n"+
			"fatal panic\n")

	report, err := engine.Search(context.Background(), search.Query{
		Terms: []search.Term{
			{Text: "fatal", Op: search.OpOr},
			{Text: "panic", Op: search.OpOr},
		},
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Equal(t, []string{"fatal"}, report.Results[0].MatchedTerms)
	assert.Equal(t, []string{"panic"}, report.Results[1].MatchedTerms)
	assert.ElementsMatch(t, []string{"fatal", "panic"}, report.Results[2].MatchedTerms)
}

func TestSearchMixedAndOr(t *testing.T) {
	engine, store, db := setupSearch(t)
	indexFile(t, store, db, "logs/app.log",
		"worker error: disk full\n"+
			"worker error: retrying\n"+
			"disk full on standby\n")

	// The and-term must hold, plus at least one or-term.
	report, err := engine.Search(context.Background(), search.Query{
		Terms: []search.Term{
			{Text: "worker", Op: search.OpAnd},
			{Text: "disk", Op: search.OpOr},
			{Text: "network", Op: search.OpOr},
		},
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, report.Results[0].LineNumber)
	assert.ElementsMatch(t, []string{"worker", "disk"}, report.Results[0].MatchedTerms)
}

func TestSearchCaseSensitivity(t *testing.T) {
	engine, store, db := setupSearch(t)
	indexFile(t, store, db, "logs/app.log", "ERROR upper\nerror lower\n")

	report, err := engine.Search(context.Background(), search.Query{
		Terms: []search.Term{{Text: "Error", Op: search.OpAnd}},
	})
	require.NoError(t, err)
	assert.Len(t, report.Results, 2)

	report, err = engine.Search(context.Background(), search.Query{
		Terms: []search.Term{{Text: "ERROR", Op: search.OpAnd, CaseSensitive: true}},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, report.Results[0].LineNumber)
}

func TestSearchRegexTerms(t *testing.T) {
	engine, store, db := setupSearch(t)
	indexFile(t, store, db, "logs/app.log",
		"request took 1500ms\n"+
			"request took 90ms\n"+
			"no timing here\n")

	report, err := engine.Search(context.Background(), search.Query{
		Terms: []search.Term{
			{Text: `took \d{3,}ms`, Op: search.OpAnd, IsRegex: true},
		},
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Results[0].LineNumber)
	assert.Equal(t, 2, report.Results[1].LineNumber)
}

func TestSearchPathFilter(t *testing.T) {
	engine, store, db := setupSearch(t)
	indexFile(t, store, db, "logs/kernel/boot.log", "error at boot\n")
	indexFile(t, store, db, "logs/app/server.log", "error at runtime\n")

	report, err := engine.Search(context.Background(), search.Query{
		Terms:      []search.Term{{Text: "error", Op: search.OpAnd}},
		PathFilter: "kernel",
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, "logs/kernel/boot.log", report.Results[0].VirtualPath)
	assert.Equal(t, 1, report.FilesSearched)
}

func TestSearchSkipsMissingContent(t *testing.T) {
	engine, store, db := setupSearch(t)
	indexFile(t, store, db, "logs/present.log", "error here\n")

	// Indexed row whose object was never stored.
	_, err := db.InsertFile(context.Background(), &metadata.File{
		Hash:         "deadbeef" + "00000000000000000000000000000000000000000000000000000000",
		VirtualPath:  "logs/missing.log",
		OriginalName: "missing.log",
	})
	require.NoError(t, err)

	report, err := engine.Search(context.Background(), search.Query{
		Terms: []search.Term{{Text: "error", Op: search.OpAnd}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesSearched)
	assert.Equal(t, 1, report.FilesSkipped)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "logs/missing.log")
	require.Len(t, report.Results, 1)
	assert.Equal(t, "logs/present.log", report.Results[0].VirtualPath)
}

func TestSearchMaxResults(t *testing.T) {
	engine, store, db := setupSearch(t)

	content := ""
	for i := range 50 {
		content += fmt.Sprintf("error number %d\n", i)
	}
	indexFile(t, store, db, "logs/app.log", content)

	report, err := engine.Search(context.Background(), search.Query{
		Terms:      []search.Term{{Text: "error", Op: search.OpAnd}},
		MaxResults: 10,
	})
	require.NoError(t, err)

	assert.Len(t, report.Results, 10)
	assert.True(t, report.Truncated)
}

func TestSearchStableOrderAcrossWorkers(t *testing.T) {
	engine, store, db := setupSearch(t, search.WithWorkers(8))

	for i := range 20 {
		indexFile(t, store, db,
			fmt.Sprintf("logs/file-%02d.log", i),
			"first error\nsecond error\n")
	}

	report, err := engine.Search(context.Background(), search.Query{
		Terms: []search.Term{{Text: "error", Op: search.OpAnd}},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 40)

	for i := range 20 {
		assert.Equal(t, fmt.Sprintf("logs/file-%02d.log", i), report.Results[2*i].VirtualPath)
		assert.Equal(t, 1, report.Results[2*i].LineNumber)
		assert.Equal(t, 2, report.Results[2*i+1].LineNumber)
	}
}

// cancelOnFirstLog cancels a context as soon as anything is logged. The
// engine logs once right before feeding candidates to the workers, so this
// stops the feed partway through.
type cancelOnFirstLog struct {
	cancel context.CancelFunc
}

func (w cancelOnFirstLog) Write(p []byte) (int, error) {
	w.cancel()
	return len(p), nil
}

func TestSearchCancellationKeepsCountersHonest(t *testing.T) {
	_, store, db := setupSearch(t)

	const total = 50
	for i := range total {
		indexFile(t, store, db, fmt.Sprintf("logs/file-%02d.log", i), "error line\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := search.New(store, db, zerolog.New(cancelOnFirstLog{cancel: cancel}), search.WithWorkers(1))

	report, err := engine.Search(ctx, search.Query{
		Terms: []search.Term{{Text: "error", Op: search.OpAnd}},
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	// Unfed candidates were never scanned and must not inflate the counters.
	assert.Less(t, report.FilesSearched+report.FilesSkipped, total)
	assert.Len(t, report.Results, report.FilesSearched)
}

func TestSearchRejectsInvalidQueries(t *testing.T) {
	engine, _, _ := setupSearch(t)

	_, err := engine.Search(context.Background(), search.Query{})
	assert.Error(t, err)

	_, err = engine.Search(context.Background(), search.Query{
		Terms: []search.Term{{Text: "(unclosed", Op: search.OpAnd, IsRegex: true}},
	})
	assert.Error(t, err)
}
