// Package config loads engine settings from defaults, an optional YAML file
// and AIQ_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/gioe/aiq/internal/balance"
	"github.com/gioe/aiq/internal/estimator"
	"github.com/gioe/aiq/internal/exposure"
	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/scoring"
	"github.com/gioe/aiq/internal/session"
	"github.com/gioe/aiq/internal/stopping"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AIQ_"

// ContentConfig sets the content-balancing targets.
type ContentConfig struct {
	// DefaultMinimum applies to pool categories without an explicit target.
	DefaultMinimum int `yaml:"default_minimum" env:"DEFAULT_MINIMUM" validate:"gte=0"`

	// Categories holds per-category targets keyed by category tag.
	Categories map[string]balance.Target `yaml:"categories" validate:"omitempty,dive"`
}

// PriorConfig sets the population prior.
type PriorConfig struct {
	Mean float64 `yaml:"mean" env:"MEAN" validate:"finite"`
	SD   float64 `yaml:"sd" env:"SD" validate:"finite,gt=0"`
}

// ScoringConfig sets the reporting scale.
type ScoringConfig struct {
	Base       float64 `yaml:"base" env:"BASE" validate:"finite"`
	Scale      float64 `yaml:"scale" env:"SCALE" validate:"finite,gt=0"`
	Confidence float64 `yaml:"confidence" env:"CONFIDENCE" validate:"gt=0,lt=1"`
}

// Config is the full application configuration.
type Config struct {
	Stopping    stopping.Rules             `yaml:"stopping" envPrefix:"STOPPING_"`
	Exposure    exposure.Controller        `yaml:"exposure" envPrefix:"EXPOSURE_"`
	Content     ContentConfig              `yaml:"content" envPrefix:"CONTENT_"`
	Prior       PriorConfig                `yaml:"prior" envPrefix:"PRIOR_"`
	Scoring     ScoringConfig              `yaml:"scoring" envPrefix:"SCORING_"`
	Calibration itempool.CalibrationFilter `yaml:"calibration" envPrefix:"CALIBRATION_"`

	// DBPath is the SQLite database file. Empty means the default data dir.
	DBPath string `yaml:"db_path" env:"DB_PATH"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Stopping: stopping.DefaultRules(),
		Exposure: exposure.NewController(),
		Content:  ContentConfig{DefaultMinimum: 1},
		Prior:    PriorConfig{Mean: estimator.DefaultPriorMean, SD: estimator.DefaultPriorSD},
		Scoring: ScoringConfig{
			Base:       scoring.DefaultBase,
			Scale:      scoring.DefaultScale,
			Confidence: scoring.DefaultLevel,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := itempool.Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Stopping.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Engine converts the configuration to engine settings.
func (c Config) Engine() session.Config {
	return session.Config{
		Stopping:       c.Stopping,
		Exposure:       c.Exposure,
		Content:        c.Content.Categories,
		DefaultMinimum: c.Content.DefaultMinimum,
		Prior:          estimator.Prior{Mean: c.Prior.Mean, SD: c.Prior.SD},
		Scoring: session.ScoringConfig{
			Base:  c.Scoring.Base,
			Scale: c.Scoring.Scale,
			Level: c.Scoring.Confidence,
		},
	}
}

// ResolveDBPath returns DBPath or, when empty, the default location under
// $XDG_DATA_HOME (or ~/.local/share), creating the parent directory.
func (c Config) ResolveDBPath() (string, error) {
	p := c.DBPath
	if p == "" {
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home dir: %w", err)
			}
			dataHome = filepath.Join(home, ".local", "share")
		}
		p = filepath.Join(dataHome, "aiq", "aiq.db")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return p, nil
}
