package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/stretchr/testify/assert"

	"github.com/gioe/aiq/internal/balance"
	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/scoring"
	"github.com/gioe/aiq/internal/session"
	"github.com/gioe/aiq/internal/simulation"
	"github.com/gioe/aiq/internal/stopping"
	"github.com/gioe/aiq/internal/store"
	"github.com/gioe/aiq/internal/ui/components"
)

func TestResult(t *testing.T) {
	out := Result(session.FinalResult{
		SessionID:         "abc",
		PoolVersion:       "v1.2.0",
		Theta:             1.2,
		SE:                0.28,
		Score:             scoring.Score{Value: 118, Lower: 109.8, Upper: 126.2, Level: 0.95},
		ItemsAdministered: 12,
		StopReason:        stopping.ReasonSEThreshold,
		CoverageDetail: []balance.CoverageRow{
			{Category: "logic", Count: 6, Proportion: 0.5, Target: 0.5, Minimum: 2},
			{Category: "verbal", Count: 6, Proportion: 0.5, Target: 0.5, Minimum: 2},
		},
	})
	for _, want := range []string{"Session abc", "118", "95% interval", "110 to 126", "se_threshold", "v1.2.0", "logic", "6 items, target 50%, min 2"} {
		assert.Contains(t, out, want)
	}
}

func TestSimulation(t *testing.T) {
	rep := simulation.Summarize([]simulation.Outcome{
		{TrueTheta: 0, Theta: 0.1, SE: 0.29, Items: 10, StopReason: stopping.ReasonSEThreshold, SEPath: []float64{0.8, 0.29}},
		{TrueTheta: 2, Theta: 1.8, SE: 0.35, Items: 30, StopReason: stopping.ReasonMaxItems, SEPath: []float64{0.7}},
	})
	out := Simulation(rep)
	for _, want := range []string{"Simulated 2 examinees", "Bias", "-0.050", "max_items", "1 (50%)", "Mean SE by step", "0.750"} {
		assert.Contains(t, out, want)
	}
}

func TestHistory(t *testing.T) {
	assert.Contains(t, History(nil), "No sessions")

	out := History([]store.ResultSummary{{
		SessionID:   "s-1",
		PoolVersion: "v1.0.0",
		Score:       103.4,
		Lower:       95,
		Upper:       112,
		Theta:       0.23,
		SE:          0.29,
		Items:       14,
		StopReason:  "se_threshold",
		FinishedAt:  time.Now(),
	}})
	for _, want := range []string{"Examinee", "103", "95-112", "0.23", "14", "se_threshold", "v1.0.0", "-"} {
		assert.Contains(t, out, want)
	}
}

func TestResponses(t *testing.T) {
	out := Responses([]session.ResponseRecord{
		{Sequence: 1, ItemID: "L1", Category: "logic", Correct: true, Theta: 0.5, SE: 0.8},
		{Sequence: 2, ItemID: "V1", Category: "verbal", Theta: 0.5, SE: 0.8, Fallback: true},
	})
	assert.Contains(t, out, "L1")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "0.800 *")
}

func TestPools(t *testing.T) {
	assert.Contains(t, Pools(nil), "No pool snapshots")
	out := Pools([]store.SnapshotInfo{
		{Version: "v1.10.0", ItemCount: 120, CreatedAt: time.Now()},
		{Version: "v1.9.0", ItemCount: 100, SessionsServed: 42, CreatedAt: time.Now()},
	})
	assert.Contains(t, out, "v1.10.0 (current)")
	assert.Contains(t, out, "42")
	assert.NotContains(t, out, "v1.9.0 (current)")
}

func TestPoolCheck(t *testing.T) {
	out := PoolCheck("pool.json", &itempool.Decoded{
		Snapshot: itempool.Snapshot{Version: "v1.0.0", Items: []itempool.Item{
			{ID: "a", Category: "logic"}, {ID: "b", Category: "logic"}, {ID: "c", Category: "verbal"},
		}},
		Rejected: []error{errors.New("item x: bad discrimination")},
	})
	assert.Contains(t, out, "1 items refused")
	assert.Contains(t, out, "bad discrimination")
	assert.Contains(t, out, "logic")

	clean := PoolCheck("pool.json", &itempool.Decoded{Snapshot: itempool.Snapshot{Version: "v1.0.0"}})
	assert.Contains(t, clean, "All items admitted.")
}

func TestBarWidth(t *testing.T) {
	b := components.NewBar("", 0.5, 20)
	assert.Equal(t, 20+len("  50%"), lipgloss.Width(b.View()))

	b = components.NewBar("logic", 2, 30)
	b.LabelWidth = 8
	b.Annotation = "all"
	out := b.View()
	assert.Equal(t, 30+len("  all"), lipgloss.Width(out))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stripped(out)), "all"))
}

// stripped removes styling for substring checks.
func stripped(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case r == 0x1b:
			inEsc = true
		case inEsc && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'):
			inEsc = false
		case !inEsc:
			b.WriteRune(r)
		}
	}
	return b.String()
}
