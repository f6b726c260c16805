package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ashllll/loganalyzer/config"
)

var goodConfig = `
{
	"policy": {
		"max_depth": 5,
		"max_compression_ratio": 50,
		"max_file_size": "512MB",
		"workers": 2
	},
	"sources": [
		{
			"source_dir": "/var/log/uploads",
			"virtual_root": "uploads",
			"enable": true,
			"cron": "* * * * *"
		},
		{
			"source_dir": "/var/log/staging",
			"enable": false,
			"cron": "10 * * * *"
		}
	]
}
`

var badConfig = `
[]
`

func TestLoad_Good(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.json")
	err := os.WriteFile(testFile, []byte(goodConfig), 0600)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFromFile(testFile)
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Sources) != 2 {
		t.Errorf("expected 2 sources, got %d", len(cfg.Sources))
	}

	if cfg.Sources[0].SourceDir != "/var/log/uploads" {
		t.Errorf("expected source /var/log/uploads, got %s", cfg.Sources[0].SourceDir)
	}

	if cfg.Sources[0].Root() != "uploads" {
		t.Errorf("expected virtual root uploads, got %s", cfg.Sources[0].Root())
	}

	if cfg.Sources[1].Root() != "staging" {
		t.Errorf("expected virtual root staging, got %s", cfg.Sources[1].Root())
	}

	if cfg.Policy.MaxDepth != 5 {
		t.Errorf("expected max depth 5, got %d", cfg.Policy.MaxDepth)
	}

	if cfg.Policy.MaxFileSize.Size != 512_000_000 {
		t.Errorf("expected max file size 512000000, got %d", cfg.Policy.MaxFileSize.Size)
	}

	if len(cfg.Policy.Options()) != 4 {
		t.Errorf("expected 4 policy options, got %d", len(cfg.Policy.Options()))
	}
}

func TestLoad_Bad(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.json")
	err := os.WriteFile(testFile, []byte(badConfig), 0600)
	if err != nil {
		t.Fatal(err)
	}

	_, err = config.LoadFromFile(testFile)
	if err == nil {
		t.Error("expected error")
	}
}

func TestLoad_EnabledSourceWithoutSchedule(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.json")
	raw := `{"sources": [{"source_dir": "/var/log", "enable": true}]}`
	err := os.WriteFile(testFile, []byte(raw), 0600)
	if err != nil {
		t.Fatal(err)
	}

	_, err = config.LoadFromFile(testFile)
	if err == nil {
		t.Error("expected error")
	}
}

func TestLoad_NoFile(t *testing.T) {
	_, err := config.LoadFromFile("unexisting")
	if err == nil {
		t.Error("expected error")
	}
}

func TestLoad_Unreadable(t *testing.T) {
	_, err := config.LoadFromFile(t.TempDir())
	if err == nil {
		t.Error("expected error")
	}
}

func TestEmptyPolicyYieldsNoOptions(t *testing.T) {
	var policy config.Policy
	if opts := policy.Options(); len(opts) != 0 {
		t.Errorf("expected no options, got %d", len(opts))
	}
}
