package exposure

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gioe/aiq/internal/itempool"
)

func cand(id string, info, dist float64) Candidate {
	return Candidate{Item: itempool.Item{ID: id, Category: "x", Discrimination: 1}, Information: info, Distance: dist}
}

func TestOrder(t *testing.T) {
	cands := []Candidate{
		cand("d", 0.5, 0.1),
		cand("c", 0.9, 0.4),
		cand("b", 0.9, 0.2),
		cand("a", 0.9, 0.2),
	}
	Order(cands)
	var ids []string
	for _, c := range cands {
		ids = append(ids, c.Item.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestPick_Errors(t *testing.T) {
	c := NewController()
	_, err := c.Pick(nil, []Candidate{cand("a", 1, 0)})
	assert.ErrorIs(t, err, ErrNoRandomSource)
	_, err = c.Pick(NewSource(1), nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestPick_StaysWithinTopK(t *testing.T) {
	var cands []Candidate
	for i := range 20 {
		cands = append(cands, cand(fmt.Sprintf("q%02d", i), float64(20-i), 0))
	}
	c := Controller{TopK: 3}
	r := NewSource(42)

	seen := map[string]int{}
	for range 3000 {
		got, err := c.Pick(r, cands)
		require.NoError(t, err)
		seen[got.Item.ID]++
	}
	assert.Len(t, seen, 3)
	for _, id := range []string{"q00", "q01", "q02"} {
		// Uniform over three: expect about 1000 each.
		assert.InDelta(t, 1000, seen[id], 150, id)
	}
}

func TestPick_TopOneIsDeterministic(t *testing.T) {
	cands := []Candidate{cand("low", 0.2, 0), cand("high", 0.8, 0), cand("tie", 0.8, 0.5)}
	c := Controller{TopK: 1}
	for seed := range uint64(50) {
		got, err := c.Pick(NewSource(seed), cands)
		require.NoError(t, err)
		assert.Equal(t, "high", got.Item.ID)
	}
}

func TestPick_Reproducible(t *testing.T) {
	var cands []Candidate
	for i := range 10 {
		cands = append(cands, cand(fmt.Sprintf("q%d", i), 1, float64(i)))
	}
	c := Controller{TopK: 5}
	r1, r2 := NewSource(7), NewSource(7)
	for range 100 {
		a, _ := c.Pick(r1, cands)
		b, _ := c.Pick(r2, cands)
		require.Equal(t, a.Item.ID, b.Item.ID)
	}
}

func TestPick_DoesNotReorderInput(t *testing.T) {
	cands := []Candidate{cand("b", 0.1, 0), cand("a", 0.9, 0)}
	_, err := NewController().Pick(NewSource(3), cands)
	require.NoError(t, err)
	assert.Equal(t, "b", cands[0].Item.ID)
}

func TestFilter(t *testing.T) {
	items := []itempool.Item{
		{ID: "fresh", ExposureCount: 10},
		{ID: "worn", ExposureCount: 60},
	}
	c := Controller{TopK: 5, MaxExposureRate: 0.3}

	kept, relaxed := c.Filter(items, 100)
	assert.False(t, relaxed)
	require.Len(t, kept, 1)
	assert.Equal(t, "fresh", kept[0].ID)

	kept, relaxed = c.Filter(items[1:], 100)
	assert.True(t, relaxed)
	assert.Len(t, kept, 1)

	// No history yet: everything is admissible.
	kept, relaxed = c.Filter(items, 0)
	assert.False(t, relaxed)
	assert.Len(t, kept, 2)

	kept, _ = Controller{TopK: 5}.Filter(items, 100)
	assert.Len(t, kept, 2)
}
