package testsupport

import (
	"path/filepath"
	"testing"

	"papercast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults to the mock capability provider and applies any provided
// options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Capabilities.Provider = "mock"
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.EpisodeDir = filepath.Join(base, "episodes")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithProvider overrides the capability provider on the test config.
func WithProvider(provider string) ConfigOption {
	return func(c *config.Config) {
		c.Capabilities.Provider = provider
	}
}

// WithStyle overrides the episode style on the test config.
func WithStyle(style string) ConfigOption {
	return func(c *config.Config) {
		c.Episode.Style = style
	}
}

// WithRewriteCap overrides the per-segment rewrite bound.
func WithRewriteCap(limit int) ConfigOption {
	return func(c *config.Config) {
		c.Scriptgen.RewriteCap = limit
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
