// Package config loads, normalizes, and validates papercast configuration.
//
// Configuration lives in a single TOML file; every field has a default so a
// missing file still produces a runnable (mock-backed) setup. Path fields are
// tilde-expanded during normalization, and capability API keys may be
// injected from the environment.
package config
