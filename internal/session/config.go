package session

import (
	"fmt"

	"github.com/gioe/aiq/internal/balance"
	"github.com/gioe/aiq/internal/estimator"
	"github.com/gioe/aiq/internal/exposure"
	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/scoring"
	"github.com/gioe/aiq/internal/stopping"
)

// ScoringConfig sets the reporting scale.
type ScoringConfig struct {
	Base  float64 `validate:"finite"`
	Scale float64 `validate:"finite,gt=0"`
	Level float64 `validate:"gt=0,lt=1"`
}

// Config holds every tunable of the engine.
type Config struct {
	Stopping stopping.Rules
	Exposure exposure.Controller

	// Content maps category tags to coverage targets. Categories of the pool
	// not listed here get DefaultMinimum and an equal share.
	Content        map[string]balance.Target `validate:"omitempty,dive"`
	DefaultMinimum int                       `validate:"gte=0"`

	Prior   estimator.Prior
	Scoring ScoringConfig
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		Stopping:       stopping.DefaultRules(),
		Exposure:       exposure.NewController(),
		DefaultMinimum: 1,
		Prior:          estimator.DefaultPrior(),
		Scoring: ScoringConfig{
			Base:  scoring.DefaultBase,
			Scale: scoring.DefaultScale,
			Level: scoring.DefaultLevel,
		},
	}
}

// Validate checks field ranges and cross-field rules.
func (c Config) Validate() error {
	if err := itempool.Validator().Struct(c); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Stopping.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Prior.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	return nil
}
