package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"papercast/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Capabilities.Provider != "mock" {
		t.Fatalf("default provider = %q, want mock", cfg.Capabilities.Provider)
	}
	if cfg.Scriptgen.RewriteCap != 2 {
		t.Fatalf("default rewrite cap = %d, want 2", cfg.Scriptgen.RewriteCap)
	}
	if cfg.Scriptgen.MinVerifiedFraction != 1.0 {
		t.Fatalf("default min verified fraction = %v, want 1.0", cfg.Scriptgen.MinVerifiedFraction)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "papercast.toml")
	content := `
[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"

[workflow]
segment_workers = 4

[index]
chunk_size = 400
chunk_overlap = 500
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}
	if cfg.Workflow.SegmentWorkers != 4 {
		t.Fatalf("segment workers = %d, want 4", cfg.Workflow.SegmentWorkers)
	}
	// Overlap larger than chunk size must be pulled back under it.
	if cfg.Index.ChunkOverlap >= cfg.Index.ChunkSize {
		t.Fatalf("normalize left overlap %d >= chunk size %d", cfg.Index.ChunkOverlap, cfg.Index.ChunkSize)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "papercast.toml")
	if err := os.WriteFile(path, []byte("[capabilities]\nprovider = \"cloud\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestValidateHostedRequiresKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "papercast.toml")
	if err := os.WriteFile(path, []byte("[capabilities]\nprovider = \"hosted\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "llm.api_key") {
		t.Fatalf("expected llm.api_key error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if err := config.CreateSample(path); err == nil {
		t.Fatal("expected error when sample already exists")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[scriptgen]") {
		t.Fatalf("sample config missing scriptgen section: %s", data)
	}
}
