package main

import "github.com/ashllll/loganalyzer/config"

type Command struct {
	Version struct{} `cmd:"" help:"Print version information."`
	Import  struct {
		Source      string              `help:"file, archive or directory to import" short:"s" required:""`
		Workspace   string              `help:"workspace directory path" short:"w" required:""`
		Root        string              `help:"virtual root the imported files land under" short:"r"`
		Config      string              `help:"config file with policy overrides" short:"c"`
		MaxDepth    int                 `help:"maximum archive nesting depth"`
		MaxRatio    float64             `help:"maximum extracted:compressed ratio before an archive is treated as a bomb"`
		MaxFileSize config.SizeArgument `help:"maximum size of a single extracted file"`
		Workers     int                 `help:"number of parallel extraction workers"`
		DryRun      bool                `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Import log files and archives into the workspace."`
	Search struct {
		Workspace     string   `help:"workspace directory path" short:"w" required:""`
		Term          []string `help:"term that must appear on a matching line (repeatable)" short:"t"`
		Any           []string `help:"term of which at least one must appear on a matching line (repeatable)" short:"a"`
		Regex         bool     `help:"treat terms as regular expressions"`
		CaseSensitive bool     `help:"match terms case sensitively"`
		Path          string   `help:"only search files whose virtual path matches this filter" short:"p"`
		MaxResults    int      `help:"maximum number of results"`
		JSON          bool     `help:"print results as JSON lines"`
	} `cmd:"" help:"Search indexed file content."`
	Export struct {
		Workspace string `help:"workspace directory path" short:"w" required:""`
		Dest      string `help:"destination directory path where files will be written" short:"D" required:""`
		Path      string `help:"only export files whose virtual path starts with this prefix" short:"p"`
		Archive   bool   `help:"write a single zip archive at the destination path instead of a directory tree"`
		Overwrite bool   `help:"overwrite destination files whose content differs"`
		DryRun    bool   `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Export indexed files back to disk."`
	Gc struct {
		Workspace string `help:"workspace directory path" short:"w" required:""`
		DryRun    bool   `help:"don't delete any objects, just print the output"`
	} `cmd:"" help:"Remove stored objects no longer referenced by the index."`
	Validate struct {
		Workspace string `help:"workspace directory path" short:"w" required:""`
	} `cmd:"" help:"Verify that every indexed file has its content in the store."`
	Daemon struct {
		Workspace string `help:"workspace directory path" short:"w" required:""`
		Config    string `help:"config file path" short:"c" required:""`
		DryRun    bool   `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Run scheduled imports from configured sources."`
}
