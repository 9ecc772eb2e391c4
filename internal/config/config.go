// Package config handles tricolor.toml configuration for the gcsim driver.
package config

import (
	"errors"
	"fmt"
	"os"

	"tricolor/pkg/scope"

	"github.com/BurntSushi/toml"
)

// Config is the parsed tricolor.toml.
type Config struct {
	Collector Collector `toml:"collector"`
	Workload  Workload  `toml:"workload"`
	Log       Log       `toml:"log"`
}

// Collector configures when frame retirement collects.
type Collector struct {
	Threshold int `toml:"threshold"`
}

// Workload shapes the synthetic allocation run.
type Workload struct {
	Rounds          int `toml:"rounds"`
	ObjectsPerFrame int `toml:"objects-per-frame"`
	DropEvery       int `toml:"drop-every"`    // detach the string child of every n-th object
	ClosureEvery    int `toml:"closure-every"` // return a closure every n-th round; 0 disables
	Depth           int `toml:"depth"`         // block scopes nested inside each call
}

// Log configures the logger.
type Log struct {
	Verbose bool `toml:"verbose"`
	NoColor bool `toml:"no-color"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Collector: Collector{
			Threshold: scope.DefaultThreshold,
		},
		Workload: Workload{
			Rounds:          100,
			ObjectsPerFrame: 8,
			DropEvery:       2,
			ClosureEvery:    10,
			Depth:           1,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return Config{}, fmt.Errorf("invalid %s: unknown key %q", path, keys[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Collector.Threshold < 0 {
		errs = append(errs, errors.New("collector.threshold must not be negative"))
	}
	if c.Workload.Rounds < 0 || c.Workload.ObjectsPerFrame < 0 || c.Workload.Depth < 0 {
		errs = append(errs, errors.New("workload sizes must not be negative"))
	}
	if c.Workload.DropEvery < 0 || c.Workload.ClosureEvery < 0 {
		errs = append(errs, errors.New("workload intervals must not be negative"))
	}
	return errors.Join(errs...)
}

// Options converts the collector settings into Manager options.
func (c Collector) Options() []scope.Option {
	return []scope.Option{scope.WithThreshold(c.Threshold)}
}
