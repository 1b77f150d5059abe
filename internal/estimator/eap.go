// Package estimator computes expected a posteriori (EAP) ability estimates.
//
// The posterior is evaluated on a fixed quadrature grid spanning
// [GridMin, GridMax] at GridStep intervals (161 nodes). Every estimate is
// therefore a weighted mean of grid nodes and stays inside the grid bounds.
// The computation is pure: identical inputs produce identical results.
package estimator

import (
	"errors"
	"fmt"
	"math"

	"github.com/gioe/aiq/internal/irt"
)

const (
	// GridMin is the lowest ability node of the quadrature grid.
	GridMin = -4.0
	// GridMax is the highest ability node of the quadrature grid.
	GridMax = 4.0
	// GridStep is the spacing between quadrature nodes.
	GridStep = 0.05

	// DefaultPriorMean is the population prior mean.
	DefaultPriorMean = 0.0
	// DefaultPriorSD is the population prior standard deviation.
	DefaultPriorSD = 1.0
)

// ErrDegeneratePosterior is returned when the posterior cannot be normalized.
var ErrDegeneratePosterior = errors.New("degenerate posterior")

// ErrInvalidPrior is returned for a prior with a non-finite mean or a
// non-positive standard deviation.
var ErrInvalidPrior = errors.New("invalid prior")

// Response is one scored item in administration order.
type Response struct {
	Params  irt.Params
	Correct bool
}

// Prior is the Gaussian prior over ability.
type Prior struct {
	Mean float64 `yaml:"mean" json:"mean"`
	SD   float64 `yaml:"sd" json:"sd" validate:"gt=0"`
}

// DefaultPrior returns the standard normal prior.
func DefaultPrior() Prior {
	return Prior{Mean: DefaultPriorMean, SD: DefaultPriorSD}
}

// Validate reports whether the prior can be used.
func (p Prior) Validate() error {
	if math.IsNaN(p.Mean) || math.IsInf(p.Mean, 0) {
		return fmt.Errorf("%w: mean %v", ErrInvalidPrior, p.Mean)
	}
	if !(p.SD > 0) || math.IsInf(p.SD, 0) {
		return fmt.Errorf("%w: sd %v", ErrInvalidPrior, p.SD)
	}
	return nil
}

// Estimate is an ability estimate with its standard error.
type Estimate struct {
	Theta float64
	SE    float64
}

// EAP is an expected a posteriori estimator over a fixed grid.
type EAP struct {
	nodes []float64
}

// NewEAP returns an estimator over the package grid constants.
func NewEAP() *EAP {
	n := int(math.Round((GridMax-GridMin)/GridStep)) + 1
	nodes := make([]float64, n)
	for i := range nodes {
		nodes[i] = GridMin + float64(i)*GridStep
	}
	return &EAP{nodes: nodes}
}

// Nodes returns a copy of the quadrature nodes.
func (e *EAP) Nodes() []float64 {
	out := make([]float64, len(e.nodes))
	copy(out, e.nodes)
	return out
}

// Estimate returns the posterior mean and posterior standard deviation of
// ability given the responses and prior.
func (e *EAP) Estimate(responses []Response, prior Prior) (Estimate, error) {
	if err := prior.Validate(); err != nil {
		return Estimate{}, err
	}

	// Work in log space and shift by the maximum before exponentiating so that
	// long all-correct or all-incorrect runs do not underflow.
	logPost := make([]float64, len(e.nodes))
	maxLog := math.Inf(-1)
	for i, theta := range e.nodes {
		z := (theta - prior.Mean) / prior.SD
		lp := -0.5 * z * z
		for _, r := range responses {
			lp += irt.LogLikelihood(r.Params, theta, r.Correct)
		}
		logPost[i] = lp
		if lp > maxLog {
			maxLog = lp
		}
	}
	if math.IsNaN(maxLog) || math.IsInf(maxLog, 0) {
		return Estimate{}, fmt.Errorf("%w: max log density %v", ErrDegeneratePosterior, maxLog)
	}

	var total, mean float64
	weights := logPost
	for i, lp := range logPost {
		w := math.Exp(lp - maxLog)
		weights[i] = w
		total += w
		mean += w * e.nodes[i]
	}
	if !(total > 0) || math.IsInf(total, 0) {
		return Estimate{}, fmt.Errorf("%w: normalizing constant %v", ErrDegeneratePosterior, total)
	}
	mean /= total

	var variance float64
	for i, w := range weights {
		d := e.nodes[i] - mean
		variance += w * d * d
	}
	variance /= total

	est := Estimate{Theta: mean, SE: math.Sqrt(variance)}
	if math.IsNaN(est.Theta) || math.IsNaN(est.SE) {
		return Estimate{}, fmt.Errorf("%w: non-finite moments", ErrDegeneratePosterior)
	}
	return est, nil
}

// ClampTheta limits theta to the grid bounds.
func ClampTheta(theta float64) float64 {
	return math.Max(GridMin, math.Min(GridMax, theta))
}
