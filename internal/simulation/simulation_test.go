package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/service"
	"github.com/gioe/aiq/internal/session"
	"github.com/gioe/aiq/internal/stopping"
)

var categories = []string{"algebra", "geometry", "logic", "verbal", "spatial", "memory"}

// populationPool spreads twenty items per category evenly over [-3, 3].
func populationPool(t *testing.T) *itempool.Pool {
	t.Helper()
	var items []itempool.Item
	for ci, cat := range categories {
		for j := range 20 {
			items = append(items, itempool.Item{
				ID:             fmt.Sprintf("%s-%02d", cat, j),
				Category:       cat,
				Discrimination: 1.2 + 0.1*float64((j*7+ci*3)%9),
				Difficulty:     -3 + 6*float64(j)/19 + 0.05*float64(ci),
			})
		}
	}
	p, err := itempool.NewPool(itempool.Snapshot{Version: "v1.0.0", Items: items})
	require.NoError(t, err)
	return p
}

var _ Runner = (*service.Manager)(nil)

func newRunner(t *testing.T) *service.Manager {
	t.Helper()
	engine, err := session.NewEngine(session.DefaultConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	feed, err := itempool.NewFeed(populationPool(t))
	require.NoError(t, err)
	m, err := service.NewManager(engine, feed, service.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	return m
}

func TestRun_PopulationRecoversAbility(t *testing.T) {
	m := newRunner(t)
	rep, err := Run(context.Background(), m, Config{Examinees: 200, Seed: 2024, ThetaMin: -3, ThetaMax: 3})
	require.NoError(t, err)

	assert.Equal(t, 200, rep.Examinees)
	assert.Len(t, rep.Outcomes, 200)
	assert.Less(t, math.Abs(rep.Bias), 0.15, "bias")
	assert.Less(t, rep.MAE, 0.40, "mean absolute error")
	assert.LessOrEqual(t, rep.MAE, rep.RMSE)
	assert.Equal(t, 0, m.Active(), "every session is finished")

	for _, o := range rep.Outcomes {
		assert.GreaterOrEqual(t, o.TrueTheta, -3.0)
		assert.Less(t, o.TrueTheta, 3.0)
		assert.GreaterOrEqual(t, o.Items, 5)
		assert.LessOrEqual(t, o.Items, 30)
		assert.Len(t, o.SEPath, o.Items)
	}

	total := 0
	for _, reason := range rep.Reasons() {
		total += rep.StopReasons[reason]
	}
	assert.Equal(t, 200, total)
	assert.Greater(t, rep.StopReasons[stopping.ReasonSEThreshold], 150)
}

func TestRun_StandardErrorShrinks(t *testing.T) {
	rep, err := Run(context.Background(), newRunner(t), Config{Examinees: 100, Seed: 9, ThetaMin: -2, ThetaMax: 2})
	require.NoError(t, err)

	// Every examinee answers at least five items, so the first five steps
	// average over the whole population.
	require.GreaterOrEqual(t, len(rep.MeanSEByStep), 5)
	assert.Less(t, rep.MeanSEByStep[0], 1.0, "one response already beats the prior")
	for i := 1; i < 5; i++ {
		assert.Less(t, rep.MeanSEByStep[i], rep.MeanSEByStep[i-1], "step %d", i+1)
	}
	assert.Less(t, rep.MeanSE, rep.MeanSEByStep[0])
}

func TestRun_IndependentOfWorkers(t *testing.T) {
	cfg := Config{Examinees: 40, Seed: 77, ThetaMin: -3, ThetaMax: 3, Workers: 1}
	serial, err := Run(context.Background(), newRunner(t), cfg)
	require.NoError(t, err)

	cfg.Workers = 8
	parallel, err := Run(context.Background(), newRunner(t), cfg)
	require.NoError(t, err)

	for i := range serial.Outcomes {
		s, p := serial.Outcomes[i], parallel.Outcomes[i]
		assert.Equal(t, s.TrueTheta, p.TrueTheta)
		assert.Equal(t, s.Theta, p.Theta)
		assert.Equal(t, s.Items, p.Items)
		assert.Equal(t, s.StopReason, p.StopReason)
	}
	assert.Equal(t, serial.Bias, parallel.Bias)
}

func TestRun_InvalidConfig(t *testing.T) {
	m := newRunner(t)
	_, err := Run(context.Background(), m, Config{Examinees: 0, ThetaMin: -1, ThetaMax: 1})
	assert.Error(t, err)
	_, err = Run(context.Background(), m, Config{Examinees: 3, ThetaMin: 1, ThetaMax: 1})
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, newRunner(t), DefaultConfig())
	assert.True(t, errors.Is(err, context.Canceled))
}

type failingRunner struct{}

func (failingRunner) Start(context.Context, string, uint64) (session.StepResult, error) {
	return session.StepResult{}, session.ErrInsufficientItemPool
}

func (failingRunner) Answer(context.Context, string, int, string, bool) (session.StepResult, error) {
	return session.StepResult{}, errors.New("unreachable")
}

func (failingRunner) Finish(context.Context, string) (session.FinalResult, error) {
	return session.FinalResult{}, errors.New("unreachable")
}

func TestRun_PropagatesRunnerErrors(t *testing.T) {
	_, err := Run(context.Background(), failingRunner{}, Config{Examinees: 2, ThetaMin: -1, ThetaMax: 1})
	assert.ErrorIs(t, err, session.ErrInsufficientItemPool)
}

func TestSummarize(t *testing.T) {
	rep := Summarize([]Outcome{
		{TrueTheta: 0, Theta: 0.5, SE: 0.3, Items: 10, StopReason: stopping.ReasonSEThreshold, SEPath: []float64{0.8, 0.5}},
		{TrueTheta: 1, Theta: 0.5, SE: 0.4, Items: 20, StopReason: stopping.ReasonMaxItems, SEPath: []float64{0.6}},
	})
	assert.InDelta(t, 0.0, rep.Bias, 1e-12)
	assert.InDelta(t, 0.5, rep.MAE, 1e-12)
	assert.InDelta(t, 0.5, rep.RMSE, 1e-12)
	assert.InDelta(t, 15.0, rep.MeanItems, 1e-12)
	assert.InDelta(t, 0.35, rep.MeanSE, 1e-12)
	require.Len(t, rep.MeanSEByStep, 2)
	assert.InDelta(t, 0.7, rep.MeanSEByStep[0], 1e-12)
	assert.InDelta(t, 0.5, rep.MeanSEByStep[1], 1e-12)
	assert.Equal(t, []stopping.Reason{stopping.ReasonMaxItems, stopping.ReasonSEThreshold}, rep.Reasons())

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Examinees)
}

func TestDeriveSeed(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := range 1000 {
		s := DeriveSeed(1, i)
		assert.False(t, seen[s], "seed collision at %d", i)
		seen[s] = true
	}
	assert.Equal(t, DeriveSeed(5, 3), DeriveSeed(5, 3))
	assert.NotEqual(t, DeriveSeed(5, 3), DeriveSeed(6, 3))
}
