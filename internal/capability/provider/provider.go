// Package provider selects a capability backend from configuration.
package provider

import (
	"fmt"

	"papercast/internal/capability"
	"papercast/internal/capability/hosted"
	"papercast/internal/capability/mock"
	"papercast/internal/config"
)

// New builds the capability set named by cfg.Capabilities.Provider.
func New(cfg *config.Config) (capability.Set, error) {
	switch cfg.Capabilities.Provider {
	case "mock":
		return capability.Set{
			Generator:   mock.NewGenerator(),
			Embedder:    mock.NewEmbedder(cfg.Embedding.Dimensions),
			Synthesizer: mock.NewSynthesizer(cfg.Speech.SampleRate),
		}, nil
	case "hosted":
		return capability.Set{
			Generator:   hosted.NewGenerator(cfg.LLM),
			Embedder:    hosted.NewEmbedder(cfg.Embedding),
			Synthesizer: hosted.NewSynthesizer(cfg.Speech),
		}, nil
	default:
		return capability.Set{}, fmt.Errorf("unknown capability provider %q", cfg.Capabilities.Provider)
	}
}

// HealthCheckers returns the members of set that support health probing.
func HealthCheckers(set capability.Set) map[string]capability.HealthChecker {
	checkers := make(map[string]capability.HealthChecker)
	if hc, ok := set.Generator.(capability.HealthChecker); ok {
		checkers["generator"] = hc
	}
	if hc, ok := set.Embedder.(capability.HealthChecker); ok {
		checkers["embedder"] = hc
	}
	if hc, ok := set.Synthesizer.(capability.HealthChecker); ok {
		checkers["synthesizer"] = hc
	}
	return checkers
}
