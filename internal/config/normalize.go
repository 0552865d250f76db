package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeCapabilities()
	c.normalizeIndex()
	c.normalizePlanner()
	c.normalizeScriptgen()
	c.normalizeEpisode()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.EpisodeDir, err = expandPath(c.Paths.EpisodeDir); err != nil {
		return fmt.Errorf("paths.episode_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.JobTimeBudget <= 0 {
		c.Workflow.JobTimeBudget = defaultJobTimeBudget
	}
	if c.Workflow.RewriteBudget <= 0 {
		c.Workflow.RewriteBudget = defaultRewriteBudget
	}
	if c.Workflow.SegmentWorkers <= 0 {
		c.Workflow.SegmentWorkers = defaultSegmentWorkers
	}
}

func (c *Config) normalizeCapabilities() {
	c.Capabilities.Provider = strings.ToLower(strings.TrimSpace(c.Capabilities.Provider))
	if c.Capabilities.Provider == "" {
		c.Capabilities.Provider = defaultProvider
	}
}

func (c *Config) normalizeIndex() {
	if c.Index.ChunkSize <= 0 {
		c.Index.ChunkSize = defaultChunkSize
	}
	if c.Index.ChunkOverlap < 0 {
		c.Index.ChunkOverlap = defaultChunkOverlap
	}
	if c.Index.ChunkOverlap >= c.Index.ChunkSize {
		c.Index.ChunkOverlap = c.Index.ChunkSize / 4
	}
}

func (c *Config) normalizePlanner() {
	if c.Planner.WordsPerMinute <= 0 {
		c.Planner.WordsPerMinute = defaultWordsPerMinute
	}
	if c.Planner.MaxSegmentSeconds <= 0 {
		c.Planner.MaxSegmentSeconds = defaultMaxSegmentSeconds
	}
	if c.Planner.MinSegments <= 0 {
		c.Planner.MinSegments = defaultMinSegments
	}
	if c.Planner.MaxSegments < c.Planner.MinSegments {
		c.Planner.MaxSegments = defaultMaxSegments
	}
}

func (c *Config) normalizeScriptgen() {
	if c.Scriptgen.RewriteCap < 0 {
		c.Scriptgen.RewriteCap = defaultRewriteCap
	}
	if c.Scriptgen.MinVerifiedFraction <= 0 || c.Scriptgen.MinVerifiedFraction > 1 {
		c.Scriptgen.MinVerifiedFraction = defaultMinVerifiedFraction
	}
	if c.Scriptgen.SupportThreshold <= 0 || c.Scriptgen.SupportThreshold >= 1 {
		c.Scriptgen.SupportThreshold = defaultSupportThreshold
	}
	if c.Scriptgen.FactsTopK <= 0 {
		c.Scriptgen.FactsTopK = defaultFactsTopK
	}
	if c.Scriptgen.StyleTopK <= 0 {
		c.Scriptgen.StyleTopK = defaultStyleTopK
	}
}

func (c *Config) normalizeEpisode() {
	c.Episode.Style = strings.ToLower(strings.TrimSpace(c.Episode.Style))
	if c.Episode.Style == "" {
		c.Episode.Style = defaultStyle
	}
	if len(c.Episode.Speakers) == 0 {
		c.Episode.Speakers = []string{"host", "expert"}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
