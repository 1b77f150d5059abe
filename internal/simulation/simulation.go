// Package simulation validates the engine against simulated examinees whose
// true ability is known.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/gioe/aiq/internal/exposure"
	"github.com/gioe/aiq/internal/irt"
	"github.com/gioe/aiq/internal/session"
	"github.com/gioe/aiq/internal/stopping"
)

// Runner drives sessions. *service.Manager implements it.
type Runner interface {
	Start(ctx context.Context, examineeID string, seed uint64) (session.StepResult, error)
	Answer(ctx context.Context, sessionID string, version int, itemID string, correct bool) (session.StepResult, error)
	Finish(ctx context.Context, sessionID string) (session.FinalResult, error)
}

// Config describes a simulated population.
type Config struct {
	Examinees int
	Seed      uint64
	Workers   int // 0 uses GOMAXPROCS
	ThetaMin  float64
	ThetaMax  float64

	// ExamineePrefix names simulated examinees as prefix-index. Empty runs
	// every examinee anonymously.
	ExamineePrefix string
}

// DefaultConfig simulates 200 examinees uniform on [-3, 3].
func DefaultConfig() Config {
	return Config{Examinees: 200, Seed: 1, ThetaMin: -3, ThetaMax: 3}
}

// Outcome is the result of one simulated examinee.
type Outcome struct {
	Index      int
	TrueTheta  float64
	Theta      float64
	SE         float64
	Score      float64
	Items      int
	StopReason stopping.Reason

	// SEPath is the standard error after each response.
	SEPath []float64
}

// Residual is the signed estimation error.
func (o Outcome) Residual() float64 { return o.Theta - o.TrueTheta }

// Report summarizes a simulated population.
type Report struct {
	Examinees   int
	Bias        float64
	MAE         float64
	RMSE        float64
	MeanItems   float64
	MeanSE      float64
	StopReasons map[stopping.Reason]int

	// MeanSEByStep[i] is the mean SE after response i+1 over the examinees
	// still in progress at that step.
	MeanSEByStep []float64
	Outcomes     []Outcome
}

// Run simulates cfg.Examinees sessions through r in parallel. Each examinee
// derives its own seed from cfg.Seed and its index, so the report does not
// depend on scheduling or worker count.
func Run(ctx context.Context, r Runner, cfg Config) (*Report, error) {
	if cfg.Examinees < 1 {
		return nil, errors.New("simulation: need at least one examinee")
	}
	if !(cfg.ThetaMin < cfg.ThetaMax) {
		return nil, fmt.Errorf("simulation: theta range [%v, %v] is empty", cfg.ThetaMin, cfg.ThetaMax)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]Outcome, cfg.Examinees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range cfg.Examinees {
		g.Go(func() error {
			o, err := examinee(gctx, r, cfg, i)
			if err != nil {
				return fmt.Errorf("examinee %d: %w", i, err)
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Summarize(outcomes), nil
}

// examinee runs one simulated session to completion.
func examinee(ctx context.Context, r Runner, cfg Config, i int) (Outcome, error) {
	seed := DeriveSeed(cfg.Seed, i)
	// The session draws from seed; responses use an independent stream.
	rng := exposure.NewSource(DeriveSeed(seed, -1))
	o := Outcome{
		Index:     i,
		TrueTheta: cfg.ThetaMin + rng.Float64()*(cfg.ThetaMax-cfg.ThetaMin),
	}

	id := ""
	if cfg.ExamineePrefix != "" {
		id = fmt.Sprintf("%s-%d", cfg.ExamineePrefix, i)
	}
	step, err := r.Start(ctx, id, seed)
	if err != nil {
		return o, err
	}
	for !step.Complete {
		if err := ctx.Err(); err != nil {
			return o, err
		}
		if step.NextItem == nil {
			return o, fmt.Errorf("session %s in progress without an item", step.SessionID)
		}
		p := irt.Probability(step.NextItem.Params(), o.TrueTheta)
		step, err = r.Answer(ctx, step.SessionID, step.Version, step.NextItem.ID, rng.Float64() < p)
		if err != nil {
			return o, err
		}
		o.SEPath = append(o.SEPath, step.SE)
	}

	final, err := r.Finish(ctx, step.SessionID)
	if err != nil {
		return o, err
	}
	o.Theta = final.Theta
	o.SE = final.SE
	o.Score = final.Score.Value
	o.Items = final.ItemsAdministered
	o.StopReason = final.StopReason
	return o, nil
}

// Summarize computes the population report of outcomes.
func Summarize(outcomes []Outcome) *Report {
	rep := &Report{
		Examinees:   len(outcomes),
		StopReasons: make(map[stopping.Reason]int),
		Outcomes:    outcomes,
	}
	if len(outcomes) == 0 {
		return rep
	}

	var sumErr, sumAbs, sumSq, sumItems, sumSE float64
	var seSum []float64
	var seN []int
	for _, o := range outcomes {
		e := o.Residual()
		sumErr += e
		sumAbs += math.Abs(e)
		sumSq += e * e
		sumItems += float64(o.Items)
		sumSE += o.SE
		rep.StopReasons[o.StopReason]++
		for step, se := range o.SEPath {
			if step >= len(seSum) {
				seSum = append(seSum, 0)
				seN = append(seN, 0)
			}
			seSum[step] += se
			seN[step]++
		}
	}
	n := float64(len(outcomes))
	rep.Bias = sumErr / n
	rep.MAE = sumAbs / n
	rep.RMSE = math.Sqrt(sumSq / n)
	rep.MeanItems = sumItems / n
	rep.MeanSE = sumSE / n
	rep.MeanSEByStep = make([]float64, len(seSum))
	for i := range seSum {
		rep.MeanSEByStep[i] = seSum[i] / float64(seN[i])
	}
	return rep
}

// Reasons returns the stop reasons of the report in a stable order.
func (r *Report) Reasons() []stopping.Reason {
	out := make([]stopping.Reason, 0, len(r.StopReasons))
	for reason := range r.StopReasons {
		out = append(out, reason)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DeriveSeed returns the seed of examinee i under master seed master. It is a
// SplitMix64 step over the pair.
func DeriveSeed(master uint64, i int) uint64 {
	z := master + uint64(i+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
