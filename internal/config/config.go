package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"plycloud/pkg/loader"
)

var ErrInvalidConfig = errors.New("invalid config")

const DefaultRuns = 10

// BenchConfig drives the plybench command.
type BenchConfig struct {
	Input      string   `toml:"input"`
	Runs       int      `toml:"runs"`
	Strategies []string `toml:"strategies"`
	Verify     bool     `toml:"verify"`
}

func DefaultBenchConfig() BenchConfig {
	return BenchConfig{
		Runs:       DefaultRuns,
		Strategies: loader.StrategyNames(),
		Verify:     true,
	}
}

// LoadBenchConfig decodes path over the defaults. Keys not present in the
// file keep their default value.
func LoadBenchConfig(path string) (BenchConfig, error) {
	cfg := DefaultBenchConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return BenchConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return BenchConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return BenchConfig{}, fmt.Errorf("%w: unknown key %s in %s", ErrInvalidConfig, undecoded[0], path)
	}
	return cfg, nil
}

func ValidateBenchConfig(cfg BenchConfig) error {
	if cfg.Input == "" {
		return fmt.Errorf("%w: input is required", ErrInvalidConfig)
	}
	if cfg.Runs <= 0 {
		return fmt.Errorf("%w: runs must be positive, got %d", ErrInvalidConfig, cfg.Runs)
	}
	if len(cfg.Strategies) == 0 {
		return fmt.Errorf("%w: no strategies", ErrInvalidConfig)
	}
	seen := map[string]bool{}
	for _, s := range cfg.Strategies {
		if _, err := loader.Lookup(s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if seen[s] {
			return fmt.Errorf("%w: strategy %s listed twice", ErrInvalidConfig, s)
		}
		seen[s] = true
	}
	return nil
}
