// Package irt implements the logistic item response model used to score and
// select calibrated items.
package irt

import "math"

// minProbability keeps log-likelihoods finite at the extremes of the ability scale.
const minProbability = 1e-12

// Params are the calibration parameters of a single item.
type Params struct {
	A float64 // discrimination, > 0
	B float64 // difficulty
	C float64 // guessing lower asymptote in [0, 1); 0 for the two-parameter form
}

// logistic evaluates 1/(1+exp(-z)) without overflowing for large |z|.
func logistic(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Probability returns the probability of a correct response at ability theta:
//
//	P(θ) = c + (1-c) / (1 + exp(-a(θ-b)))
func Probability(p Params, theta float64) float64 {
	return p.C + (1-p.C)*logistic(p.A*(theta-p.B))
}

// Information returns the Fisher information the item carries at theta.
// For c = 0 it reduces to a²·P·Q.
func Information(p Params, theta float64) float64 {
	prob := Probability(p, theta)
	q := 1 - prob
	if p.C == 0 {
		return p.A * p.A * prob * q
	}
	if prob <= 0 || q <= 0 {
		return 0
	}
	r := (prob - p.C) / (1 - p.C)
	return p.A * p.A * (q / prob) * r * r
}

// LogLikelihood returns log P(θ) for a correct response and log(1-P(θ))
// otherwise.
func LogLikelihood(p Params, theta float64, correct bool) float64 {
	z := p.A * (theta - p.B)
	if p.C == 0 {
		// log σ(z) = -log(1+e^-z); log(1-σ(z)) = log σ(-z).
		if correct {
			return logSigmoid(z)
		}
		return logSigmoid(-z)
	}
	prob := p.C + (1-p.C)*logistic(z)
	if correct {
		return math.Log(math.Max(prob, minProbability))
	}
	return math.Log(math.Max(1-prob, minProbability))
}

func logSigmoid(z float64) float64 {
	if z >= 0 {
		return -math.Log1p(math.Exp(-z))
	}
	return z - math.Log1p(math.Exp(z))
}
