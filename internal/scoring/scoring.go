// Package scoring maps ability estimates to reportable scores and confidence
// intervals.
package scoring

import (
	"errors"
	"fmt"
	"math"
)

// Defaults for the reporting scale.
const (
	DefaultBase  = 100.0
	DefaultScale = 15.0
	DefaultLevel = 0.95
)

// ErrInvalidScale is returned for non-positive scales or levels outside (0, 1).
var ErrInvalidScale = errors.New("invalid score scale")

// Score is a converted ability estimate with its confidence interval.
type Score struct {
	Value float64 `json:"value"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// Converter is the linear map score = base + θ·scale.
type Converter struct {
	base  float64
	scale float64
	level float64
	z     float64
}

// NewConverter builds a converter whose interval covers the given two-sided
// confidence level.
func NewConverter(base, scale, level float64) (*Converter, error) {
	if !(scale > 0) || math.IsInf(scale, 0) || math.IsNaN(base) || math.IsInf(base, 0) {
		return nil, fmt.Errorf("%w: base %v scale %v", ErrInvalidScale, base, scale)
	}
	if !(level > 0 && level < 1) {
		return nil, fmt.Errorf("%w: confidence level %v not in (0, 1)", ErrInvalidScale, level)
	}
	return &Converter{base: base, scale: scale, level: level, z: ZForLevel(level)}, nil
}

// DefaultConverter returns the 100/15 scale at 95% confidence.
func DefaultConverter() *Converter {
	c, _ := NewConverter(DefaultBase, DefaultScale, DefaultLevel)
	return c
}

// ZForLevel returns the standard normal quantile for a two-sided level.
func ZForLevel(level float64) float64 {
	return math.Sqrt2 * math.Erfinv(level)
}

// Base returns the score at θ = 0.
func (c *Converter) Base() float64 { return c.base }

// Scale returns score points per unit of θ.
func (c *Converter) Scale() float64 { return c.scale }

// Z returns the interval multiplier.
func (c *Converter) Z() float64 { return c.z }

// ToScore maps θ to the reporting scale.
func (c *Converter) ToScore(theta float64) float64 {
	return c.base + theta*c.scale
}

// ToTheta is the inverse of ToScore.
func (c *Converter) ToTheta(score float64) float64 {
	return (score - c.base) / c.scale
}

// Interval returns the symmetric confidence interval around θ's score.
func (c *Converter) Interval(theta, se float64) (lower, upper float64) {
	center := c.ToScore(theta)
	half := c.z * math.Abs(se) * c.scale
	return center - half, center + half
}

// Convert returns the score and interval for an estimate.
func (c *Converter) Convert(theta, se float64) Score {
	lo, hi := c.Interval(theta, se)
	return Score{Value: c.ToScore(theta), Lower: lo, Upper: hi, Level: c.level}
}

// Round rounds v to the given number of decimals for display.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
