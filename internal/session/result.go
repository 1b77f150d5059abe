package session

import (
	"github.com/gioe/aiq/internal/balance"
	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/scoring"
	"github.com/gioe/aiq/internal/stopping"
)

// StepResult is returned by Initialize and ProcessResponse.
type StepResult struct {
	SessionID         string          `json:"session_id"`
	NextItem          *itempool.Item  `json:"next_item,omitempty"`
	Theta             float64         `json:"theta"`
	SE                float64         `json:"se"`
	ItemsAdministered int             `json:"items_administered"`
	Complete          bool            `json:"complete"`
	StopReason        stopping.Reason `json:"stop_reason,omitempty"`
	Version           int             `json:"version"`
}

// FinalResult is returned by Finalize.
type FinalResult struct {
	SessionID         string                `json:"session_id"`
	PoolVersion       string                `json:"pool_version"`
	Theta             float64               `json:"theta"`
	SE                float64               `json:"se"`
	Score             scoring.Score         `json:"score"`
	ItemsAdministered int                   `json:"items_administered"`
	Coverage          map[string]int        `json:"coverage"`
	CoverageDetail    []balance.CoverageRow `json:"coverage_detail"`
	StopReason        stopping.Reason       `json:"stop_reason"`
	Responses         []ResponseRecord      `json:"responses"`
}

func stepResult(s *State) StepResult {
	r := StepResult{
		SessionID:         s.id,
		Theta:             s.estimate.Theta,
		SE:                s.estimate.SE,
		ItemsAdministered: len(s.responses),
		Complete:          s.machine.Stopped(),
		StopReason:        s.machine.Reason(),
		Version:           s.version,
	}
	if s.pending != nil {
		it := *s.pending
		r.NextItem = &it
	}
	return r
}
