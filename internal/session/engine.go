// Package session runs one adaptive test from first item to final score.
//
// The Engine is stateless between calls: every operation receives the
// session's State explicitly, and no operation blocks or consults a global
// random source. Different sessions can run in parallel freely. Operations on
// the same State must be serialized by the caller; the engine only detects
// overlapping mutations and rejects them.
package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gioe/aiq/internal/balance"
	"github.com/gioe/aiq/internal/estimator"
	"github.com/gioe/aiq/internal/exposure"
	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/scoring"
	"github.com/gioe/aiq/internal/selection"
	"github.com/gioe/aiq/internal/stopping"
)

// AbilityEstimator computes an ability estimate from a response history.
type AbilityEstimator interface {
	Estimate(responses []estimator.Response, prior estimator.Prior) (estimator.Estimate, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEstimator replaces the EAP estimator.
func WithEstimator(est AbilityEstimator) Option {
	return func(e *Engine) { e.estimator = est }
}

// WithStrategies replaces the selector's strategy chain.
func WithStrategies(strategies ...selection.Strategy) Option {
	return func(e *Engine) { e.strategies = strategies }
}

// Engine composes estimation, selection, stopping and scoring.
type Engine struct {
	cfg        Config
	estimator  AbilityEstimator
	strategies []selection.Strategy
	selector   *selection.Selector
	converter  *scoring.Converter
	logger     *slog.Logger
}

// NewEngine validates cfg and builds an engine. A nil logger uses the default
// logger at construction time.
func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	converter, err := scoring.NewConverter(cfg.Scoring.Base, cfg.Scoring.Scale, cfg.Scoring.Level)
	if err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	e := &Engine{cfg: cfg, converter: converter, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.estimator == nil {
		e.estimator = estimator.NewEAP()
	}
	if e.strategies != nil {
		e.selector = selection.NewSelectorWithStrategies(cfg.Exposure, logger, e.strategies...)
	} else {
		e.selector = selection.NewSelector(cfg.Exposure, logger)
	}
	return e, nil
}

// Config returns the engine settings.
func (e *Engine) Config() Config { return e.cfg }

// Converter returns the score converter.
func (e *Engine) Converter() *scoring.Converter { return e.converter }

// InitOptions are the per-session inputs of Initialize.
type InitOptions struct {
	// SessionID identifies the session. A random UUID is used when empty.
	SessionID string

	// PriorMean is an examinee-specific starting ability. Nil uses the
	// configured prior mean.
	PriorMean *float64

	// Seed drives exposure control. Equal seeds give equal item sequences
	// for equal responses.
	Seed uint64
}

// Initialize creates a session over pool and selects the first item. It
// returns ErrInsufficientItemPool when the pool cannot supply the minimum
// number of items.
func (e *Engine) Initialize(pool *itempool.Pool, opts InitOptions) (*State, StepResult, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, StepResult{}, fmt.Errorf("%w: pool has no items", ErrInsufficientItemPool)
	}
	if pool.Len() < e.cfg.Stopping.MinItems {
		return nil, StepResult{}, fmt.Errorf("%w: pool has %d items, sessions need at least %d",
			ErrInsufficientItemPool, pool.Len(), e.cfg.Stopping.MinItems)
	}

	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	logger := e.logger.With("session_id", id)

	prior := e.cfg.Prior
	if opts.PriorMean != nil {
		prior.Mean = *opts.PriorMean
		if err := prior.Validate(); err != nil {
			return nil, StepResult{}, err
		}
	}
	// Configured and examinee-specific means alike start on the grid.
	if clamped := estimator.ClampTheta(prior.Mean); clamped != prior.Mean {
		logger.Warn("prior mean outside estimation grid, clamped",
			"prior_mean", prior.Mean, "clamped", clamped)
		prior.Mean = clamped
	}

	bal, adjustments := balance.New(pool, e.cfg.Content, e.cfg.DefaultMinimum)
	for _, adj := range adjustments {
		logger.Warn("content target adjusted",
			"category", adj.Category, "kind", string(adj.Kind), "detail", adj.Detail)
	}

	s := &State{
		id:           id,
		pool:         pool,
		prior:        prior,
		administered: make(map[string]bool),
		estimate:     estimator.Estimate{Theta: prior.Mean, SE: prior.SD},
		balance:      bal,
		machine:      stopping.NewMachine(e.cfg.Stopping),
		rng:          exposure.NewSource(opts.Seed),
	}

	sel, err := e.selector.Select(e.request(s))
	if err != nil {
		return nil, StepResult{}, fmt.Errorf("select first item: %w", err)
	}
	s.pending = &sel.Item

	logger.Debug("session initialized",
		"pool_version", pool.Version(),
		"pool_size", pool.Len(),
		"prior_mean", prior.Mean,
		"first_item", sel.Item.ID,
	)
	return s, stepResult(s), nil
}

// ProcessResponse scores the response to the pending item, re-estimates
// ability over the full history, evaluates the stopping rules and, when the
// session continues, selects the next item.
func (e *Engine) ProcessResponse(s *State, itemID string, correct bool) (StepResult, error) {
	if s == nil {
		return StepResult{}, errors.New("process response: nil session")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return StepResult{}, conflict(s, "process_response", "another operation is in flight")
	}
	defer s.busy.Store(false)

	switch {
	case s.sealed:
		return StepResult{}, conflict(s, "process_response", "session already finalized")
	case s.machine.Stopped():
		return StepResult{}, conflict(s, "process_response", "session already stopped ("+string(s.machine.Reason())+")")
	case s.pending == nil:
		return StepResult{}, conflict(s, "process_response", "no item pending")
	}
	if s.administered[itemID] {
		return StepResult{}, fmt.Errorf("%w: item %s was already administered", ErrUnexpectedItem, itemID)
	}
	if itemID != s.pending.ID {
		return StepResult{}, fmt.Errorf("%w: got %s, waiting on %s", ErrUnexpectedItem, itemID, s.pending.ID)
	}

	item := *s.pending
	logger := e.logger.With("session_id", s.id)

	history := make([]estimator.Response, 0, len(s.responses)+1)
	for _, r := range s.responses {
		it, _ := s.pool.Item(r.ItemID)
		history = append(history, estimator.Response{Params: it.Params(), Correct: r.Correct})
	}
	history = append(history, estimator.Response{Params: item.Params(), Correct: correct})

	est, err := e.estimator.Estimate(history, s.prior)
	fallback := false
	if err != nil {
		logger.Warn("ability estimation failed, keeping previous estimate",
			"item_id", item.ID,
			"theta", s.estimate.Theta,
			"se", s.estimate.SE,
			"error", err,
		)
		est = s.estimate
		fallback = true
	}

	s.estimate = est
	s.responses = append(s.responses, ResponseRecord{
		Sequence: len(s.responses) + 1,
		ItemID:   item.ID,
		Category: item.Category,
		Correct:  correct,
		Theta:    est.Theta,
		SE:       est.SE,
		Fallback: fallback,
	})
	s.administered[item.ID] = true
	s.balance.Record(item.Category)
	s.pending = nil
	s.version++

	decision, err := s.machine.Advance(stopping.Input{
		Administered:      len(s.responses),
		SE:                est.SE,
		MinimumsMet:       s.balance.MinimumsMet(),
		EligibleRemaining: s.pool.Len() - len(s.responses),
	})
	if err != nil {
		return StepResult{}, err
	}

	if decision.Stop {
		logger.Info("session stopped",
			"reason", string(decision.Reason),
			"items", len(s.responses),
			"theta", est.Theta,
			"se", est.SE,
		)
		return stepResult(s), nil
	}

	sel, err := e.selector.Select(e.request(s))
	if errors.Is(err, ErrInsufficientItemPool) {
		logger.Warn("no eligible item remains, stopping", "items", len(s.responses))
		if ferr := s.machine.ForceStop(stopping.ReasonContentBalanceExhausted); ferr != nil {
			return StepResult{}, ferr
		}
		return stepResult(s), nil
	}
	if err != nil {
		return StepResult{}, fmt.Errorf("select next item: %w", err)
	}
	s.pending = &sel.Item
	return stepResult(s), nil
}

// Finalize converts the final estimate to a score and seals the session. The
// session must be stopped and not yet finalized.
func (e *Engine) Finalize(s *State) (FinalResult, error) {
	if s == nil {
		return FinalResult{}, errors.New("finalize: nil session")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return FinalResult{}, conflict(s, "finalize", "another operation is in flight")
	}
	defer s.busy.Store(false)

	if s.sealed {
		return FinalResult{}, conflict(s, "finalize", "session already finalized")
	}
	if !s.machine.Stopped() {
		return FinalResult{}, conflict(s, "finalize", "session still in progress")
	}

	s.sealed = true
	s.version++

	return FinalResult{
		SessionID:         s.id,
		PoolVersion:       s.pool.Version(),
		Theta:             s.estimate.Theta,
		SE:                s.estimate.SE,
		Score:             e.converter.Convert(s.estimate.Theta, s.estimate.SE),
		ItemsAdministered: len(s.responses),
		Coverage:          s.balance.Counts(),
		CoverageDetail:    s.balance.Coverage(),
		StopReason:        s.machine.Reason(),
		Responses:         s.Responses(),
	}, nil
}

func (e *Engine) request(s *State) selection.Request {
	return selection.Request{
		Pool:         s.pool,
		Theta:        s.estimate.Theta,
		Administered: s.administered,
		Balance:      s.balance,
		Rand:         s.rng,
	}
}
