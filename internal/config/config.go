// Package config handles configuration loading and management for BitPulse.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for BitPulse
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Device   DeviceConfig   `yaml:"device"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Game     GameConfig     `yaml:"game"`
	Output   OutputConfig   `yaml:"output"`
}

// AnalysisConfig defines the statistical analysis configuration
type AnalysisConfig struct {
	WindowSize  int     `yaml:"window_size"`
	Sensitivity float64 `yaml:"sensitivity"`
}

// DeviceConfig defines the entropy source configuration
type DeviceConfig struct {
	// Port pins the serial device path; empty means auto-detect.
	Port     string `yaml:"port"`
	Simulate bool   `yaml:"simulate"`
	Seed     int64  `yaml:"seed"`
}

// PipelineConfig defines the streaming loop configuration
type PipelineConfig struct {
	ChunkSize            int           `yaml:"chunk_size"`
	VizEvery             int           `yaml:"viz_every"`
	LoopInterval         time.Duration `yaml:"loop_interval"`
	PausePoll            time.Duration `yaml:"pause_poll"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
}

// GameConfig defines the intention game configuration
type GameConfig struct {
	Enabled bool          `yaml:"enabled"`
	MinTurn time.Duration `yaml:"min_turn"`
	MaxTurn time.Duration `yaml:"max_turn"`
}

// OutputConfig defines the capture output configuration
type OutputConfig struct {
	// Path is a capture file or directory; directories get a
	// timestamped filename. Empty disables persistence.
	Path      string `yaml:"path"`
	Verbose   bool   `yaml:"verbose"`
	EnableTUI bool   `yaml:"enable_tui"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			WindowSize:  1000,
			Sensitivity: 0.01,
		},
		Device: DeviceConfig{
			Simulate: false,
		},
		Pipeline: PipelineConfig{
			ChunkSize:            10,
			VizEvery:             10,
			LoopInterval:         20 * time.Millisecond,
			PausePoll:            100 * time.Millisecond,
			MaxConsecutiveErrors: 50,
		},
		Game: GameConfig{
			MinTurn: 10 * time.Second,
			MaxTurn: 30 * time.Second,
		},
		Output: OutputConfig{
			EnableTUI: true,
		},
	}
}

// Load reads a YAML config file over the defaults. Unknown fields are
// rejected so a typo fails loudly instead of silently using a default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML config from bytes over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Analysis.WindowSize < 1 {
		return fmt.Errorf("analysis.window_size must be at least 1, got %d", c.Analysis.WindowSize)
	}
	if c.Analysis.Sensitivity <= 0 || c.Analysis.Sensitivity >= 1 {
		return fmt.Errorf("analysis.sensitivity must be in (0, 1), got %g", c.Analysis.Sensitivity)
	}
	if c.Pipeline.ChunkSize < 1 {
		return fmt.Errorf("pipeline.chunk_size must be at least 1, got %d", c.Pipeline.ChunkSize)
	}
	if c.Pipeline.VizEvery < 1 {
		return fmt.Errorf("pipeline.viz_every must be at least 1, got %d", c.Pipeline.VizEvery)
	}
	if c.Pipeline.LoopInterval <= 0 {
		return fmt.Errorf("pipeline.loop_interval must be positive, got %v", c.Pipeline.LoopInterval)
	}
	if c.Pipeline.PausePoll <= 0 {
		return fmt.Errorf("pipeline.pause_poll must be positive, got %v", c.Pipeline.PausePoll)
	}
	if c.Pipeline.MaxConsecutiveErrors < 0 {
		return fmt.Errorf("pipeline.max_consecutive_errors must not be negative, got %d", c.Pipeline.MaxConsecutiveErrors)
	}
	if c.Game.MinTurn <= 0 || c.Game.MaxTurn <= 0 {
		return fmt.Errorf("game turn durations must be positive, got min %v max %v", c.Game.MinTurn, c.Game.MaxTurn)
	}
	if c.Game.MinTurn > c.Game.MaxTurn {
		return fmt.Errorf("game.min_turn %v exceeds game.max_turn %v", c.Game.MinTurn, c.Game.MaxTurn)
	}
	return nil
}
