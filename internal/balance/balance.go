// Package balance tracks per-category coverage of a session against target
// proportions and hard minimum counts.
package balance

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/gioe/aiq/internal/itempool"
)

// Target is the configured coverage goal for one category.
type Target struct {
	// Proportion is the share of administered items the category should get.
	// Zero means an equal share of the pool's categories.
	Proportion float64 `yaml:"proportion" json:"proportion" validate:"gte=0,lte=1"`

	// Minimum is the hard floor of items from the category before the session
	// may stop on precision.
	Minimum int `yaml:"minimum" json:"minimum" validate:"gte=0"`
}

// AdjustmentKind classifies a change made to the configured targets.
type AdjustmentKind string

const (
	// AdjustDropped means a configured category has no items in the pool.
	AdjustDropped AdjustmentKind = "dropped"
	// AdjustCapped means a minimum exceeded the category's pool size.
	AdjustCapped AdjustmentKind = "capped"
)

// Adjustment records a target the balancer could not honour as configured.
type Adjustment struct {
	Category string
	Kind     AdjustmentKind
	Detail   string
}

// Balancer holds the coverage counts of one session. It is not safe for
// concurrent use; the owning session serializes access.
type Balancer struct {
	categories []string
	targets    map[string]Target
	poolSize   map[string]int
	counts     map[string]int
	total      int
}

// New builds a balancer for the categories present in pool. Categories without
// an explicit target get defaultMinimum and an equal share. The returned
// adjustments describe targets that were dropped or capped.
func New(pool *itempool.Pool, targets map[string]Target, defaultMinimum int) (*Balancer, []Adjustment) {
	b := &Balancer{
		categories: pool.Categories(),
		targets:    make(map[string]Target),
		poolSize:   make(map[string]int),
		counts:     make(map[string]int),
	}

	var adjustments []Adjustment
	for _, name := range slices.Sorted(maps.Keys(targets)) {
		if pool.CategorySize(name) == 0 {
			adjustments = append(adjustments, Adjustment{
				Category: name,
				Kind:     AdjustDropped,
				Detail:   "category has no items in the pool",
			})
		}
	}

	share := 0.0
	if n := len(b.categories); n > 0 {
		share = 1 / float64(n)
	}
	for _, name := range b.categories {
		size := pool.CategorySize(name)
		b.poolSize[name] = size

		t, ok := targets[name]
		if !ok {
			t = Target{Minimum: defaultMinimum}
		}
		if t.Proportion == 0 {
			t.Proportion = share
		}
		if t.Minimum > size {
			adjustments = append(adjustments, Adjustment{
				Category: name,
				Kind:     AdjustCapped,
				Detail:   fmt.Sprintf("minimum %d exceeds pool size %d", t.Minimum, size),
			})
			t.Minimum = size
		}
		b.targets[name] = t
	}
	return b, adjustments
}

// Record counts one administered item of the given category.
func (b *Balancer) Record(category string) {
	b.counts[category]++
	b.total++
}

// Count returns the number of administered items in category.
func (b *Balancer) Count(category string) int { return b.counts[category] }

// Total returns the number of administered items across all categories.
func (b *Balancer) Total() int { return b.total }

// Categories returns the tracked categories in sorted order.
func (b *Balancer) Categories() []string { return slices.Clone(b.categories) }

// Target returns the effective target of a category.
func (b *Balancer) Target(category string) (Target, bool) {
	t, ok := b.targets[category]
	return t, ok
}

// BelowMinimum reports whether the category has not yet reached its minimum.
func (b *Balancer) BelowMinimum(category string) bool {
	t, ok := b.targets[category]
	return ok && b.counts[category] < t.Minimum
}

// MinimumsMet reports whether every category has reached its minimum.
func (b *Balancer) MinimumsMet() bool {
	for _, c := range b.categories {
		if b.BelowMinimum(c) {
			return false
		}
	}
	return true
}

// Remaining returns how many items of the category have not been administered.
func (b *Balancer) Remaining(category string) int {
	return b.poolSize[category] - b.counts[category]
}

// Exhausted reports whether every item of the category has been administered.
func (b *Balancer) Exhausted(category string) bool {
	return b.Remaining(category) <= 0
}

// Deficit is a category still short of its minimum.
type Deficit struct {
	Category  string
	Shortfall int
}

// Deficits lists categories below their minimum, most urgent first: largest
// shortfall, then largest target proportion, then name.
func (b *Balancer) Deficits() []Deficit {
	var out []Deficit
	for _, c := range b.categories {
		if short := b.targets[c].Minimum - b.counts[c]; short > 0 {
			out = append(out, Deficit{Category: c, Shortfall: short})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Shortfall != out[j].Shortfall {
			return out[i].Shortfall > out[j].Shortfall
		}
		pi, pj := b.targets[out[i].Category].Proportion, b.targets[out[j].Category].Proportion
		if pi != pj {
			return pi > pj
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// CoverageRow summarizes one category for reporting.
type CoverageRow struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	Proportion float64 `json:"proportion"`
	Target     float64 `json:"target"`
	Minimum    int     `json:"minimum"`
}

// Coverage returns one row per category, sorted by name.
func (b *Balancer) Coverage() []CoverageRow {
	rows := make([]CoverageRow, 0, len(b.categories))
	for _, c := range b.categories {
		row := CoverageRow{
			Category: c,
			Count:    b.counts[c],
			Target:   b.targets[c].Proportion,
			Minimum:  b.targets[c].Minimum,
		}
		if b.total > 0 {
			row.Proportion = float64(b.counts[c]) / float64(b.total)
		}
		rows = append(rows, row)
	}
	return rows
}

// Counts returns a copy of the per-category counts, including zero entries.
func (b *Balancer) Counts() map[string]int {
	out := make(map[string]int, len(b.categories))
	for _, c := range b.categories {
		out[c] = b.counts[c]
	}
	return out
}

// Clone returns an independent copy.
func (b *Balancer) Clone() *Balancer {
	return &Balancer{
		categories: slices.Clone(b.categories),
		targets:    maps.Clone(b.targets),
		poolSize:   maps.Clone(b.poolSize),
		counts:     maps.Clone(b.counts),
		total:      b.total,
	}
}
