package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ashllll/loganalyzer/search"
)

func searchCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	ws, err := openWorkspace(args.Search.Workspace, logger, false)
	if err != nil {
		return err
	}

	query := search.Query{
		PathFilter: args.Search.Path,
		MaxResults: args.Search.MaxResults,
	}
	for _, text := range args.Search.Term {
		query.Terms = append(query.Terms, search.Term{
			Text:          text,
			Op:            search.OpAnd,
			CaseSensitive: args.Search.CaseSensitive,
			IsRegex:       args.Search.Regex,
		})
	}
	for _, text := range args.Search.Any {
		query.Terms = append(query.Terms, search.Term{
			Text:          text,
			Op:            search.OpOr,
			CaseSensitive: args.Search.CaseSensitive,
			IsRegex:       args.Search.Regex,
		})
	}

	engine := search.New(ws.store, ws.db, logger)
	report, err := engine.Search(ctx, query)
	if err != nil {
		return err
	}

	if err := printResults(report, args.Search.JSON); err != nil {
		return err
	}

	if report.Truncated {
		logger.Warn().Int("results", len(report.Results)).Msg("result limit reached, output truncated")
	}
	return nil
}

func printResults(report *search.Report, asJSON bool) error {
	out := os.Stdout

	if asJSON {
		enc := json.NewEncoder(out)
		for _, result := range report.Results {
			record := struct {
				Path    string   `json:"path"`
				Line    int      `json:"line"`
				Snippet string   `json:"snippet"`
				Terms   []string `json:"terms"`
				URI     string   `json:"uri"`
			}{
				Path:    result.VirtualPath,
				Line:    result.LineNumber,
				Snippet: result.Snippet,
				Terms:   result.MatchedTerms,
				URI:     result.ContentURI,
			}
			if err := enc.Encode(record); err != nil {
				return err
			}
		}
		return nil
	}

	for _, result := range report.Results {
		if _, err := fmt.Fprintf(out, "%s:%d: %s\n", result.VirtualPath, result.LineNumber, result.Snippet); err != nil {
			return err
		}
	}
	return nil
}
