// Package selection chooses the next item of a session: it excludes
// administered items, narrows candidates through a chain of strategies, ranks
// them by Fisher information and hands the final pick to exposure control.
package selection

import (
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/gioe/aiq/internal/balance"
	"github.com/gioe/aiq/internal/exposure"
	"github.com/gioe/aiq/internal/irt"
	"github.com/gioe/aiq/internal/itempool"
)

// ErrInsufficientItemPool means no eligible item remains, even after relaxing
// every constraint.
var ErrInsufficientItemPool = errors.New("insufficient item pool")

// Request carries everything one selection needs.
type Request struct {
	Pool         *itempool.Pool
	Theta        float64
	Administered map[string]bool
	Balance      *balance.Balancer
	Rand         *rand.Rand
}

// Selection is the chosen item with the trail of strategies that shaped it.
type Selection struct {
	Item        itempool.Item
	Information float64
	Candidates  int
	Applied     []string
	Degraded    []string
}

// Selector ranks and picks items. It holds no per-session state.
type Selector struct {
	strategies []Strategy
	exposure   exposure.Controller
	logger     *slog.Logger
}

// NewSelector returns a selector with the default strategy chain: category
// restriction followed by the exposure-rate cap.
func NewSelector(ctrl exposure.Controller, logger *slog.Logger) *Selector {
	return NewSelectorWithStrategies(ctrl, logger, CategoryRestricted{}, ExposureCapped{Controller: ctrl})
}

// NewSelectorWithStrategies returns a selector applying the given chain in
// order. An empty chain behaves like InformationBased.
func NewSelectorWithStrategies(ctrl exposure.Controller, logger *slog.Logger, strategies ...Strategy) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	if len(strategies) == 0 {
		strategies = []Strategy{InformationBased{}}
	}
	return &Selector{strategies: strategies, exposure: ctrl, logger: logger}
}

// Strategies returns the names of the chain in order.
func (s *Selector) Strategies() []string {
	names := make([]string, len(s.strategies))
	for i, st := range s.strategies {
		names[i] = st.Name()
	}
	return names
}

// Eligible returns the pool items not yet administered, ordered by ID.
func Eligible(pool *itempool.Pool, administered map[string]bool) []itempool.Item {
	if pool == nil {
		return nil
	}
	all := pool.Items()
	out := all[:0]
	for _, it := range all {
		if !administered[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// Rank scores items by Fisher information at theta, best first.
func Rank(items []itempool.Item, theta float64) []exposure.Candidate {
	cands := make([]exposure.Candidate, len(items))
	for i, it := range items {
		cands[i] = exposure.Candidate{
			Item:        it,
			Information: irt.Information(it.Params(), theta),
			Distance:    math.Abs(it.Difficulty - theta),
		}
	}
	exposure.Order(cands)
	return cands
}

// Select returns exactly one eligible item or ErrInsufficientItemPool.
// Degraded strategy steps are logged as warnings and never fail the call.
func (s *Selector) Select(req Request) (Selection, error) {
	eligible := Eligible(req.Pool, req.Administered)
	if len(eligible) == 0 {
		return Selection{}, ErrInsufficientItemPool
	}

	var sel Selection
	candidates := eligible
	for _, st := range s.strategies {
		n := st.Narrow(req, candidates)
		switch {
		case n.Degraded:
			s.logger.Warn("selection constraint relaxed",
				"strategy", st.Name(),
				"detail", n.Detail,
				"candidates", len(n.Items),
			)
			sel.Degraded = append(sel.Degraded, st.Name())
		case n.Applied:
			s.logger.Debug("selection constraint applied",
				"strategy", st.Name(),
				"detail", n.Detail,
				"candidates", len(n.Items),
			)
			sel.Applied = append(sel.Applied, st.Name())
		}
		if len(n.Items) > 0 {
			candidates = n.Items
		}
	}

	picked, err := s.exposure.Pick(req.Rand, Rank(candidates, req.Theta))
	if err != nil {
		return Selection{}, err
	}
	sel.Item = picked.Item
	sel.Information = picked.Information
	sel.Candidates = len(candidates)
	return sel, nil
}
