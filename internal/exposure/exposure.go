// Package exposure randomizes the final item pick among near-optimal
// candidates so the same few items are not shown to every examinee.
package exposure

import (
	"errors"
	"math/rand/v2"
	"sort"

	"github.com/gioe/aiq/internal/itempool"
)

// DefaultTopK is the number of best candidates the pick is drawn from.
const DefaultTopK = 5

// ErrNoCandidates is returned when Pick receives an empty list.
var ErrNoCandidates = errors.New("no candidates to pick from")

// ErrNoRandomSource is returned when Pick is called without a seeded source.
var ErrNoRandomSource = errors.New("exposure control requires a caller-supplied random source")

// Candidate is an eligible item ranked for selection.
type Candidate struct {
	Item        itempool.Item
	Information float64 // Fisher information at the current θ
	Distance    float64 // |difficulty − θ|
}

// Order sorts candidates best first: information descending, then distance
// ascending, then item ID.
func Order(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Information != cands[j].Information {
			return cands[i].Information > cands[j].Information
		}
		if cands[i].Distance != cands[j].Distance {
			return cands[i].Distance < cands[j].Distance
		}
		return cands[i].Item.ID < cands[j].Item.ID
	})
}

// Controller holds the exposure-control settings.
type Controller struct {
	// TopK is the size of the near-optimal set the pick is drawn from.
	TopK int `yaml:"top_k" env:"TOP_K" validate:"gte=1"`

	// MaxExposureRate caps ExposureCount/SessionsServed. Zero disables it.
	MaxExposureRate float64 `yaml:"max_exposure_rate" env:"MAX_EXPOSURE_RATE" validate:"gte=0,lte=1"`
}

// NewController returns a controller with the default top-k and no rate cap.
func NewController() Controller {
	return Controller{TopK: DefaultTopK}
}

// Pick orders the candidates and draws uniformly among the best TopK. The
// input slice is not modified.
func (c Controller) Pick(r *rand.Rand, cands []Candidate) (Candidate, error) {
	if r == nil {
		return Candidate{}, ErrNoRandomSource
	}
	if len(cands) == 0 {
		return Candidate{}, ErrNoCandidates
	}
	ranked := make([]Candidate, len(cands))
	copy(ranked, cands)
	Order(ranked)

	k := max(c.TopK, 1)
	k = min(k, len(ranked))
	return ranked[r.IntN(k)], nil
}

// Admissible reports whether an item is under the exposure-rate cap.
func (c Controller) Admissible(it itempool.Item, sessionsServed int) bool {
	if c.MaxExposureRate <= 0 || sessionsServed <= 0 {
		return true
	}
	return float64(it.ExposureCount)/float64(sessionsServed) <= c.MaxExposureRate
}

// Filter drops over-exposed items. When every item is over the cap the input
// is returned unchanged and relaxed is true.
func (c Controller) Filter(items []itempool.Item, sessionsServed int) (kept []itempool.Item, relaxed bool) {
	if c.MaxExposureRate <= 0 || sessionsServed <= 0 {
		return items, false
	}
	kept = make([]itempool.Item, 0, len(items))
	for _, it := range items {
		if c.Admissible(it, sessionsServed) {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 && len(items) > 0 {
		return items, true
	}
	return kept, false
}

// NewSource returns a deterministic random generator for a session seed.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}
