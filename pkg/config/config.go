// Package config loads debuglater.yaml, the optional host-side
// configuration for capture and persistence.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lawnmowerlatte/debuglater/pkg/capture"
	"github.com/lawnmowerlatte/debuglater/pkg/dump"
	"github.com/lawnmowerlatte/debuglater/pkg/sanitize"
)

// DefaultFile is the conventional configuration file name.
const DefaultFile = "debuglater.yaml"

// Config mirrors the YAML layout.
type Config struct {
	Dump     DumpConfig     `yaml:"dump"`
	Sanitize SanitizeConfig `yaml:"sanitize"`
}

// DumpConfig configures the persistence layer.
type DumpConfig struct {
	// Path is where the failure hook writes its dump.
	Path string `yaml:"path"`
	// Compress selects the gzip container.
	Compress bool `yaml:"compress"`
	// FullFidelity enables the full codec; disabling it forces the
	// restricted, built-ins-only mode.
	FullFidelity bool `yaml:"full_fidelity"`
}

// SanitizeConfig configures the value sanitizer.
type SanitizeConfig struct {
	// MaxDepth bounds recursion into containers and object attributes.
	MaxDepth int `yaml:"max_depth"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Dump: DumpConfig{
			Path:         "crash.dump",
			Compress:     true,
			FullFidelity: true,
		},
		Sanitize: SanitizeConfig{
			MaxDepth: sanitize.DefaultMaxDepth,
		},
	}
}

// Load reads the configuration at path. A missing file yields the default
// configuration without error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// DumpOptions maps the configuration onto persistence options.
func (c Config) DumpOptions() dump.Options {
	return dump.Options{
		FullFidelity: c.Dump.FullFidelity,
		Compress:     c.Dump.Compress,
	}
}

// CaptureOptions maps the configuration onto capture options.
func (c Config) CaptureOptions() capture.Options {
	mode := sanitize.FullFidelity
	if !c.Dump.FullFidelity {
		mode = sanitize.Restricted
	}
	return capture.Options{
		Sanitizer: sanitize.NewWithDepth(mode, c.Sanitize.MaxDepth),
	}
}
