package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	EpisodeDir string `toml:"episode_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Workflow contains daemon timing, budgets, and parallelism settings.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	// JobTimeBudget is the wall-clock ceiling for one episode job, in seconds.
	// Exceeding it fails the job with a partial report.
	JobTimeBudget int `toml:"job_time_budget"`
	// RewriteBudget caps rewrite attempts summed across all segments of a job.
	RewriteBudget int `toml:"rewrite_budget"`
	// SegmentWorkers bounds how many segment pipelines run concurrently.
	SegmentWorkers int `toml:"segment_workers"`
}

// Capabilities selects the backend implementation for every external
// capability. "mock" is deterministic and needs no network.
type Capabilities struct {
	Provider string `toml:"provider"`
}

// LLM contains connection settings for the text generation capability.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Embedding contains connection settings for the embedding capability.
type Embedding struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Speech contains connection settings for the speech synthesis capability.
type Speech struct {
	APIKey         string            `toml:"api_key"`
	BaseURL        string            `toml:"base_url"`
	Model          string            `toml:"model"`
	Voices         map[string]string `toml:"voices"`
	SampleRate     int               `toml:"sample_rate"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
}

// Index contains chunking and retrieval settings for the dual index.
type Index struct {
	ChunkSize    int `toml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap"`
}

// Planner contains outline generation settings.
type Planner struct {
	WordsPerMinute    int `toml:"words_per_minute"`
	MaxSegmentSeconds int `toml:"max_segment_seconds"`
	MinSegments       int `toml:"min_segments"`
	MaxSegments       int `toml:"max_segments"`
}

// Scriptgen contains settings for the draft/verify/rewrite loop.
type Scriptgen struct {
	// RewriteCap bounds rewrite passes for a single segment.
	RewriteCap int `toml:"rewrite_cap"`
	// MinVerifiedFraction is the verification score required to accept a
	// segment. 1.0 demands that every line verifies.
	MinVerifiedFraction float64 `toml:"min_verified_fraction"`
	// SupportThreshold is the minimum retrieval similarity for a chunk to
	// count as supporting a claim.
	SupportThreshold float64 `toml:"support_threshold"`
	FactsTopK        int     `toml:"facts_top_k"`
	StyleTopK        int     `toml:"style_top_k"`
}

// Episode contains presentation defaults for generated episodes.
type Episode struct {
	Style    string   `toml:"style"`
	Speakers []string `toml:"speakers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration object.
type Config struct {
	Paths        Paths        `toml:"paths"`
	Workflow     Workflow     `toml:"workflow"`
	Capabilities Capabilities `toml:"capabilities"`
	LLM          LLM          `toml:"llm"`
	Embedding    Embedding    `toml:"embedding"`
	Speech       Speech       `toml:"speech"`
	Index        Index        `toml:"index"`
	Planner      Planner      `toml:"planner"`
	Scriptgen    Scriptgen    `toml:"scriptgen"`
	Episode      Episode      `toml:"episode"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the expanded default configuration location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/papercast/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error; defaults apply. Environment variables from a local .env file
// and the process environment override API keys.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnvOverrides lets API keys come from the environment (optionally a
// .env file) so they stay out of the config file.
func (c *Config) applyEnvOverrides() {
	_ = godotenv.Load()
	if v := strings.TrimSpace(os.Getenv("PAPERCAST_LLM_API_KEY")); v != "" {
		c.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("PAPERCAST_EMBEDDING_API_KEY")); v != "" {
		c.Embedding.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("PAPERCAST_SPEECH_API_KEY")); v != "" {
		c.Speech.APIKey = v
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("papercast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.EpisodeDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobTimeBudget returns the configured wall-clock ceiling as a duration.
func (c *Config) JobTimeBudgetDuration() time.Duration {
	return time.Duration(c.Workflow.JobTimeBudget) * time.Second
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}

// ExpandPath exposes tilde and relative path expansion for CLI helpers.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
