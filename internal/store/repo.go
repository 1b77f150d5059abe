package store

import (
	"context"
	"errors"
	"time"

	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/session"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// QueryOpts configures result queries with filtering and pagination.
type QueryOpts struct {
	Limit      int    // max results (0 = unlimited)
	ExamineeID string // only results for this examinee when set
	After      int64  // sequence > After
}

// SnapshotInfo describes a stored pool snapshot without its items.
type SnapshotInfo struct {
	Version        string
	SessionsServed int
	ItemCount      int
	CreatedAt      time.Time
}

// PoolRepo persists calibrated pool snapshots.
type PoolRepo interface {
	// SaveSnapshot stores a snapshot and its items. Versions are unique.
	SaveSnapshot(ctx context.Context, snap itempool.Snapshot) error

	// LatestSnapshot returns the snapshot with the highest semantic version.
	LatestSnapshot(ctx context.Context) (itempool.Snapshot, error)

	// Snapshot returns the snapshot stored under version.
	Snapshot(ctx context.Context, version string) (itempool.Snapshot, error)

	// Versions lists stored snapshots, newest version first.
	Versions(ctx context.Context) ([]SnapshotInfo, error)
}

// SessionRecord is a finalized session as handed to the store.
type SessionRecord struct {
	ExamineeID string
	Seed       uint64
	Result     session.FinalResult
	FinishedAt time.Time
}

// ResultSummary is one stored session result.
type ResultSummary struct {
	SessionID   string
	Sequence    int64
	ExamineeID  string
	PoolVersion string
	Seed        uint64
	Theta       float64
	SE          float64
	Score       float64
	Lower       float64
	Upper       float64
	Confidence  float64
	Items       int
	StopReason  string
	Coverage    map[string]int
	FinishedAt  time.Time
}

// ResultRepo persists finalized session results.
type ResultRepo interface {
	// SaveResult stores the result and its responses, and charges the
	// administered items against the exposure counts of the pool snapshot
	// the session ran on.
	SaveResult(ctx context.Context, rec SessionRecord) error

	// ListResults returns results ordered newest first.
	ListResults(ctx context.Context, opts QueryOpts) ([]ResultSummary, error)

	// Responses returns the response history of a stored session.
	Responses(ctx context.Context, sessionID string) ([]session.ResponseRecord, error)

	// PriorTheta returns the latest stored ability estimate for examineeID.
	// It implements itempool.PriorProvider.
	PriorTheta(ctx context.Context, examineeID string) (float64, bool, error)
}
