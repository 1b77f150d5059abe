package itempool

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateItem is returned when a snapshot contains the same item ID twice.
var ErrDuplicateItem = errors.New("duplicate item")

// ErrBelowCalibrationThreshold marks an item whose calibration is too weak to use.
var ErrBelowCalibrationThreshold = errors.New("below calibration threshold")

// Snapshot is the raw content of a pool as produced by the calibration job.
type Snapshot struct {
	Version        string
	SessionsServed int
	Items          []Item
}

// Pool is a read-only snapshot of calibrated items. It is never mutated after
// construction; accessors hand out copies.
type Pool struct {
	version        string
	sessionsServed int
	items          []Item
	index          map[string]int
	categories     []string
	categorySize   map[string]int
}

// NewPool validates every item and builds an immutable pool. Items are
// ordered by ID so iteration is deterministic.
func NewPool(snap Snapshot) (*Pool, error) {
	items := make([]Item, len(snap.Items))
	copy(items, snap.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	p := &Pool{
		version:        snap.Version,
		sessionsServed: snap.SessionsServed,
		items:          items,
		index:          make(map[string]int, len(items)),
		categorySize:   make(map[string]int),
	}
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
		if _, dup := p.index[it.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
		p.index[it.ID] = i
		if p.categorySize[it.Category] == 0 {
			p.categories = append(p.categories, it.Category)
		}
		p.categorySize[it.Category]++
	}
	sort.Strings(p.categories)
	return p, nil
}

// Version is the calibration version of the snapshot.
func (p *Pool) Version() string { return p.version }

// SessionsServed is the number of sessions the exposure counters were
// accumulated over.
func (p *Pool) SessionsServed() int { return p.sessionsServed }

// Len returns the number of items.
func (p *Pool) Len() int { return len(p.items) }

// Items returns a copy of all items ordered by ID.
func (p *Pool) Items() []Item {
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

// Item looks up an item by ID.
func (p *Pool) Item(id string) (Item, bool) {
	i, ok := p.index[id]
	if !ok {
		return Item{}, false
	}
	return p.items[i], true
}

// Categories returns the sorted category tags present in the pool.
func (p *Pool) Categories() []string {
	out := make([]string, len(p.categories))
	copy(out, p.categories)
	return out
}

// CategorySize returns how many items carry the category tag.
func (p *Pool) CategorySize(category string) int {
	return p.categorySize[category]
}

// Snapshot returns a copy of the pool content.
func (p *Pool) Snapshot() Snapshot {
	return Snapshot{Version: p.version, SessionsServed: p.sessionsServed, Items: p.Items()}
}

// CalibrationFilter admits only items meeting a minimum calibration confidence.
// Zero values disable the corresponding check.
type CalibrationFilter struct {
	MinSampleSize       int     `yaml:"min_sample_size" env:"MIN_SAMPLE_SIZE" validate:"gte=0"`
	MaxDiscriminationSE float64 `yaml:"max_discrimination_se" env:"MAX_DISCRIMINATION_SE" validate:"gte=0"`
	MaxDifficultySE     float64 `yaml:"max_difficulty_se" env:"MAX_DIFFICULTY_SE" validate:"gte=0"`
}

// Admit returns nil when the item's calibration meets the thresholds.
func (f CalibrationFilter) Admit(it Item) error {
	c := it.Calibration
	switch {
	case f.MinSampleSize > 0 && c.SampleSize < f.MinSampleSize:
		return fmt.Errorf("%w: item %s sample size %d < %d", ErrBelowCalibrationThreshold, it.ID, c.SampleSize, f.MinSampleSize)
	case f.MaxDiscriminationSE > 0 && c.DiscriminationSE > f.MaxDiscriminationSE:
		return fmt.Errorf("%w: item %s se(a) %.3f > %.3f", ErrBelowCalibrationThreshold, it.ID, c.DiscriminationSE, f.MaxDiscriminationSE)
	case f.MaxDifficultySE > 0 && c.DifficultySE > f.MaxDifficultySE:
		return fmt.Errorf("%w: item %s se(b) %.3f > %.3f", ErrBelowCalibrationThreshold, it.ID, c.DifficultySE, f.MaxDifficultySE)
	}
	return nil
}

// Screen splits candidate items into those usable by the engine and those
// refused, either for invalid parameters or weak calibration.
func Screen(items []Item, filter CalibrationFilter) (admitted []Item, rejected []error) {
	for _, it := range items {
		if err := it.Validate(); err != nil {
			rejected = append(rejected, err)
			continue
		}
		if err := filter.Admit(it); err != nil {
			rejected = append(rejected, err)
			continue
		}
		admitted = append(admitted, it)
	}
	return admitted, rejected
}
