package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapabilities(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateScriptgen(); err != nil {
		return err
	}
	if err := c.validateEpisode(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapabilities() error {
	switch c.Capabilities.Provider {
	case "mock":
		return nil
	case "hosted":
	default:
		return fmt.Errorf("capabilities.provider must be \"mock\" or \"hosted\", got %q", c.Capabilities.Provider)
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/papercast/config.toml"
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required for the hosted provider. Set PAPERCAST_LLM_API_KEY or edit %s (create with 'papercast config init')", defaultPath)
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required for the hosted provider. Set PAPERCAST_EMBEDDING_API_KEY or edit %s", defaultPath)
	}
	if c.Speech.BaseURL == "" {
		return errors.New("speech.base_url must be set for the hosted provider")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.SegmentWorkers > 16 {
		return errors.New("workflow.segment_workers must be at most 16")
	}
	return nil
}

func (c *Config) validateScriptgen() error {
	if c.Scriptgen.RewriteCap > 10 {
		return errors.New("scriptgen.rewrite_cap must be at most 10")
	}
	return nil
}

func (c *Config) validateEpisode() error {
	if len(c.Episode.Speakers) < 2 {
		return errors.New("episode.speakers needs at least two speakers for a dialogue")
	}
	seen := make(map[string]struct{}, len(c.Episode.Speakers))
	for _, speaker := range c.Episode.Speakers {
		if speaker == "" {
			return errors.New("episode.speakers must not contain empty names")
		}
		if _, dup := seen[speaker]; dup {
			return fmt.Errorf("episode.speakers contains duplicate %q", speaker)
		}
		seen[speaker] = struct{}{}
	}
	return nil
}
