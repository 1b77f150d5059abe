package itempool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/mod/semver"
)

// ErrStaleSnapshot is returned when a published snapshot is not newer than
// the current one.
var ErrStaleSnapshot = errors.New("stale pool snapshot")

// ErrInvalidVersion is returned for snapshot versions that are not semver.
var ErrInvalidVersion = errors.New("invalid pool version")

// ErrNoSnapshot is returned by Current before anything has been published.
var ErrNoSnapshot = errors.New("no pool snapshot published")

// Feed hands the latest calibrated pool to sessions being initialized.
// Recalibration publishes a whole new snapshot; sessions already running keep
// the pointer they took at start and never observe the change.
type Feed struct {
	mu      sync.RWMutex
	current *Pool
}

// NewFeed returns a feed optionally seeded with an initial pool.
func NewFeed(initial *Pool) (*Feed, error) {
	f := &Feed{}
	if initial != nil {
		if err := f.Publish(initial); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Publish replaces the current snapshot if p carries a newer version.
func (f *Feed) Publish(p *Pool) error {
	if p == nil {
		return errors.New("publish nil pool")
	}
	if !semver.IsValid(p.Version()) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, p.Version())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil && semver.Compare(p.Version(), f.current.Version()) <= 0 {
		return fmt.Errorf("%w: %s is not newer than %s", ErrStaleSnapshot, p.Version(), f.current.Version())
	}
	f.current = p
	return nil
}

// Current returns the latest published snapshot.
func (f *Feed) Current() (*Pool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return nil, ErrNoSnapshot
	}
	return f.current, nil
}

// LoadPool implements Provider.
func (f *Feed) LoadPool(_ context.Context) (*Pool, error) {
	return f.Current()
}

// Consume publishes snapshots received from a calibration producer until the
// channel closes or ctx is done. Stale snapshots are reported through onError
// and skipped.
func (f *Feed) Consume(ctx context.Context, updates <-chan *Pool, onError func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-updates:
			if !ok {
				return nil
			}
			if err := f.Publish(p); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
