package preflight

import (
	"context"
	"sort"

	"papercast/internal/capability"
	"papercast/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for the given config. Capability
// checkers come from the active provider; the mock provider's checkers
// always pass, so development setups stay green without network access.
func RunAll(ctx context.Context, cfg *config.Config, checkers map[string]capability.HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Episode directory", cfg.Paths.EpisodeDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDiskSpace("Episode disk space", cfg.Paths.EpisodeDir),
	}

	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		results = append(results, CheckCapability(ctx, name, checkers[name]))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
