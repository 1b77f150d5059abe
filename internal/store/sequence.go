package store

import (
	"context"
	"fmt"
	"sync"

	entsql "entgo.io/ent/dialect/sql"
)

// resultSequence stamps every stored session result with a number that only
// grows, across process restarts. History listings order and page on it.
type resultSequence struct {
	mu  sync.Mutex
	drv *entsql.Driver
}

// newResultSequence seeds the single counter row if it is missing.
func newResultSequence(ctx context.Context, drv *entsql.Driver) (*resultSequence, error) {
	q, args := builder().Insert(ResultSequenceTable.Name).
		Columns("id", "next_val").
		Values(1, 1).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()
	if err := drv.Exec(ctx, q, args, nil); err != nil {
		return nil, fmt.Errorf("seed result sequence: %w", err)
	}
	return &resultSequence{drv: drv}, nil
}

// Next returns the next number. It must not be called inside an open
// transaction.
func (s *resultSequence) Next(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	// RETURNING keeps the read and the increment in one statement.
	err := queryOne(ctx, s.drv,
		`UPDATE result_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
		nil, &n)
	if err != nil {
		return 0, fmt.Errorf("next result sequence: %w", err)
	}
	return n, nil
}
