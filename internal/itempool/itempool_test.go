package itempool

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validItem(id, category string) Item {
	return Item{
		ID:             id,
		Category:       category,
		Discrimination: 1.2,
		Difficulty:     0.3,
		Calibration:    Calibration{SampleSize: 800, DiscriminationSE: 0.08, DifficultySE: 0.1},
	}
}

func TestItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Item)
		wantErr bool
		field   string
	}{
		{"valid", func(*Item) {}, false, ""},
		{"valid 3pl", func(it *Item) { it.Guessing = 0.2 }, false, ""},
		{"missing id", func(it *Item) { it.ID = "" }, true, "Item.ID"},
		{"missing category", func(it *Item) { it.Category = "" }, true, "Item.Category"},
		{"zero discrimination", func(it *Item) { it.Discrimination = 0 }, true, "Item.Discrimination"},
		{"negative discrimination", func(it *Item) { it.Discrimination = -1 }, true, "Item.Discrimination"},
		{"nan difficulty", func(it *Item) { it.Difficulty = math.NaN() }, true, "Item.Difficulty"},
		{"infinite discrimination", func(it *Item) { it.Discrimination = math.Inf(1) }, true, "Item.Discrimination"},
		{"guessing one", func(it *Item) { it.Guessing = 1 }, true, "Item.Guessing"},
		{"negative guessing", func(it *Item) { it.Guessing = -0.1 }, true, "Item.Guessing"},
		{"negative exposure", func(it *Item) { it.ExposureCount = -1 }, true, "Item.ExposureCount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := validItem("q1", "logic")
			tt.mutate(&it)
			err := it.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidItemParameters)
			var ie *InvalidItemError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.field, ie.Field)
		})
	}
}

func TestNewPool(t *testing.T) {
	pool, err := NewPool(Snapshot{
		Version: "v1.0.0",
		Items:   []Item{validItem("b", "verbal"), validItem("a", "logic"), validItem("c", "logic")},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, pool.Len())
	assert.Equal(t, []string{"logic", "verbal"}, pool.Categories())
	assert.Equal(t, 2, pool.CategorySize("logic"))
	assert.Equal(t, 0, pool.CategorySize("memory"))

	items := pool.Items()
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "c", items[2].ID)

	it, ok := pool.Item("b")
	require.True(t, ok)
	assert.Equal(t, "verbal", it.Category)
	_, ok = pool.Item("zzz")
	assert.False(t, ok)
}

func TestNewPool_IsImmutable(t *testing.T) {
	src := []Item{validItem("a", "logic")}
	pool, err := NewPool(Snapshot{Version: "v1", Items: src})
	require.NoError(t, err)

	src[0].Difficulty = 99
	items := pool.Items()
	items[0].Category = "changed"

	it, _ := pool.Item("a")
	assert.Equal(t, 0.3, it.Difficulty)
	assert.Equal(t, "logic", it.Category)
}

func TestNewPool_RejectsInvalidAndDuplicates(t *testing.T) {
	bad := validItem("a", "logic")
	bad.Discrimination = 0
	_, err := NewPool(Snapshot{Version: "v1", Items: []Item{bad}})
	assert.ErrorIs(t, err, ErrInvalidItemParameters)

	_, err = NewPool(Snapshot{Version: "v1", Items: []Item{validItem("a", "x"), validItem("a", "y")}})
	assert.ErrorIs(t, err, ErrDuplicateItem)
}

func TestScreen(t *testing.T) {
	weak := validItem("weak", "logic")
	weak.Calibration.SampleSize = 20
	noisy := validItem("noisy", "logic")
	noisy.Calibration.DifficultySE = 0.9
	broken := validItem("broken", "logic")
	broken.Guessing = 1.5

	admitted, rejected := Screen(
		[]Item{validItem("ok", "logic"), weak, noisy, broken},
		CalibrationFilter{MinSampleSize: 100, MaxDifficultySE: 0.5},
	)
	require.Len(t, admitted, 1)
	assert.Equal(t, "ok", admitted[0].ID)
	require.Len(t, rejected, 3)
	assert.ErrorIs(t, rejected[0], ErrBelowCalibrationThreshold)
	assert.ErrorIs(t, rejected[1], ErrBelowCalibrationThreshold)
	assert.ErrorIs(t, rejected[2], ErrInvalidItemParameters)
}

const samplePool = `{
  "version": "v2.1.0",
  "sessions_served": 40,
  "items": [
    {"id": "log-1", "category": "logic", "a": 1.4, "b": -0.2, "calibration": {"sample_size": 900, "se_a": 0.07, "se_b": 0.09}},
    {"id": "log-2", "category": "logic", "a": 1.1, "b": 0.8, "c": 0.2, "exposure_count": 12, "calibration": {"sample_size": 650}},
    {"id": "ver-1", "category": "verbal", "b": 0.4},
    {"id": "ver-2", "category": "verbal", "a": 0.9}
  ]
}`

func TestDecode(t *testing.T) {
	dec, err := Decode(strings.NewReader(samplePool), CalibrationFilter{})
	require.NoError(t, err)

	assert.Equal(t, "v2.1.0", dec.Snapshot.Version)
	assert.Equal(t, 40, dec.Snapshot.SessionsServed)
	require.Len(t, dec.Snapshot.Items, 2)
	assert.Equal(t, 0.2, dec.Snapshot.Items[1].Guessing)
	assert.Equal(t, 12, dec.Snapshot.Items[1].ExposureCount)

	// Items missing a or b are refused, never defaulted.
	require.Len(t, dec.Rejected, 2)
	for _, rej := range dec.Rejected {
		assert.ErrorIs(t, rej, ErrInvalidItemParameters)
	}
	assert.Contains(t, dec.Rejected[0].Error(), "ver-1")
	assert.Contains(t, dec.Rejected[1].Error(), "ver-2")
}

func TestDecode_CalibrationFilter(t *testing.T) {
	dec, err := Decode(strings.NewReader(samplePool), CalibrationFilter{MinSampleSize: 700})
	require.NoError(t, err)
	require.Len(t, dec.Snapshot.Items, 1)
	assert.Equal(t, "log-1", dec.Snapshot.Items[0].ID)
	assert.Len(t, dec.Rejected, 3)
}

func TestDecode_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing version", `{"items": []}`},
		{"bad version", `{"version": "1.0", "items": []}`},
		{"string parameter", `{"version": "v1", "items": [{"id": "x", "category": "y", "a": "high", "b": 0}]}`},
		{"unknown field", `{"version": "v1", "items": [{"id": "x", "category": "y", "a": 1, "b": 0, "d": 3}]}`},
		{"missing category", `{"version": "v1", "items": [{"id": "x", "a": 1, "b": 0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc), CalibrationFilter{})
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecodePreservesPool(t *testing.T) {
	it := validItem("a", "logic")
	it.Guessing = 0.15
	it.ExposureCount = 3
	snap := Snapshot{Version: "v3.0.0", SessionsServed: 10, Items: []Item{it, validItem("b", "verbal")}}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap))
	dec, err := Decode(&buf, CalibrationFilter{})
	require.NoError(t, err)
	assert.Empty(t, dec.Rejected)
	assert.Equal(t, snap, dec.Snapshot)
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	require.NoError(t, os.WriteFile(path, []byte(samplePool), 0o644))

	p := &FileProvider{Path: path}
	pool, err := p.LoadPool(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2.1.0", pool.Version())
	assert.Equal(t, 2, pool.Len())

	_, err = (&FileProvider{Path: filepath.Join(t.TempDir(), "missing.json")}).LoadPool(context.Background())
	assert.Error(t, err)
}

func mustPool(t *testing.T, version string) *Pool {
	t.Helper()
	p, err := NewPool(Snapshot{Version: version, Items: []Item{validItem("a", "logic")}})
	require.NoError(t, err)
	return p
}

func TestFeed_Publish(t *testing.T) {
	feed, err := NewFeed(nil)
	require.NoError(t, err)
	_, err = feed.Current()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, feed.Publish(mustPool(t, "v1.2.0")))
	require.NoError(t, feed.Publish(mustPool(t, "v1.10.0")))

	assert.ErrorIs(t, feed.Publish(mustPool(t, "v1.9.0")), ErrStaleSnapshot)
	assert.ErrorIs(t, feed.Publish(mustPool(t, "v1.10.0")), ErrStaleSnapshot)
	assert.ErrorIs(t, feed.Publish(mustPool(t, "latest")), ErrInvalidVersion)

	cur, err := feed.Current()
	require.NoError(t, err)
	assert.Equal(t, "v1.10.0", cur.Version())
}

func TestFeed_SessionsKeepTheirSnapshot(t *testing.T) {
	feed, err := NewFeed(mustPool(t, "v1.0.0"))
	require.NoError(t, err)

	taken, err := feed.LoadPool(context.Background())
	require.NoError(t, err)

	require.NoError(t, feed.Publish(mustPool(t, "v1.1.0")))
	assert.Equal(t, "v1.0.0", taken.Version())

	latest, _ := feed.Current()
	assert.Equal(t, "v1.1.0", latest.Version())
}

func TestFeed_Consume(t *testing.T) {
	feed, err := NewFeed(nil)
	require.NoError(t, err)

	updates := make(chan *Pool, 3)
	updates <- mustPool(t, "v1.0.0")
	updates <- mustPool(t, "v0.9.0")
	updates <- mustPool(t, "v1.1.0")
	close(updates)

	var stale []error
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, feed.Consume(ctx, updates, func(err error) { stale = append(stale, err) }))

	require.Len(t, stale, 1)
	assert.True(t, errors.Is(stale[0], ErrStaleSnapshot))
	cur, _ := feed.Current()
	assert.Equal(t, "v1.1.0", cur.Version())
}
