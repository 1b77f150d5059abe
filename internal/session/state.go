package session

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/gioe/aiq/internal/balance"
	"github.com/gioe/aiq/internal/estimator"
	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/stopping"
)

// ResponseRecord is one accepted response. Records are append-only.
type ResponseRecord struct {
	Sequence int     `json:"sequence"`
	ItemID   string  `json:"item_id"`
	Category string  `json:"category"`
	Correct  bool    `json:"correct"`
	Theta    float64 `json:"theta"`
	SE       float64 `json:"se"`

	// Fallback is set when the estimator failed and the previous estimate
	// was carried forward.
	Fallback bool `json:"fallback,omitempty"`
}

// State is the mutable state of one examinee session. The engine mutates it
// only inside ProcessResponse and seals it in Finalize. Callers must
// serialize operations on the same State.
type State struct {
	id    string
	pool  *itempool.Pool
	prior estimator.Prior

	responses    []ResponseRecord
	administered map[string]bool
	estimate     estimator.Estimate

	balance *balance.Balancer
	machine *stopping.Machine
	pending *itempool.Item
	rng     *rand.Rand

	version int
	sealed  bool
	busy    atomic.Bool
}

// ID returns the session identity.
func (s *State) ID() string { return s.id }

// Status returns in_progress or stopped.
func (s *State) Status() stopping.Status { return s.machine.Status() }

// StopReason returns why the session stopped, empty while in progress.
func (s *State) StopReason() stopping.Reason { return s.machine.Reason() }

// Estimate returns the current ability estimate.
func (s *State) Estimate() estimator.Estimate { return s.estimate }

// Prior returns the prior the session was initialized with.
func (s *State) Prior() estimator.Prior { return s.prior }

// ItemsAdministered returns the number of accepted responses.
func (s *State) ItemsAdministered() int { return len(s.responses) }

// Responses returns a copy of the response history in order.
func (s *State) Responses() []ResponseRecord {
	out := make([]ResponseRecord, len(s.responses))
	copy(out, s.responses)
	return out
}

// Coverage returns the per-category counts.
func (s *State) Coverage() map[string]int { return s.balance.Counts() }

// CoverageReport returns the detailed coverage rows.
func (s *State) CoverageReport() []balance.CoverageRow { return s.balance.Coverage() }

// PendingItem returns the item the session is waiting on, if any.
func (s *State) PendingItem() (itempool.Item, bool) {
	if s.pending == nil {
		return itempool.Item{}, false
	}
	return *s.pending, true
}

// PoolVersion returns the calibration version of the session's snapshot.
func (s *State) PoolVersion() string { return s.pool.Version() }

// Version increments on every successful mutation. Callers use it as an
// optimistic concurrency token.
func (s *State) Version() int { return s.version }

// Sealed reports whether Finalize has run.
func (s *State) Sealed() bool { return s.sealed }

// Stopped reports whether the stopping rules have fired.
func (s *State) Stopped() bool { return s.machine.Stopped() }
