// Package service owns live adaptive sessions on behalf of callers. It gives
// each session a single writer, checks the caller's view of the session
// version before every mutation, and hands finished results to persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/session"
	"github.com/gioe/aiq/internal/store"
	"github.com/gioe/aiq/internal/telemetry"
)

// ErrSessionNotFound is returned for an unknown or already closed session.
var ErrSessionNotFound = errors.New("session not found")

// ErrVersionMismatch is returned when the caller acted on a stale view of the
// session. It matches session.ErrSessionStateConflict.
var ErrVersionMismatch = fmt.Errorf("version mismatch: %w", session.ErrSessionStateConflict)

// ResultSaver persists finalized sessions.
type ResultSaver interface {
	SaveResult(ctx context.Context, rec store.SessionRecord) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithPriors looks up examinee-specific starting abilities at Start.
func WithPriors(p itempool.PriorProvider) Option {
	return func(m *Manager) { m.priors = p }
}

// WithResultSaver persists every finished session.
func WithResultSaver(s ResultSaver) Option {
	return func(m *Manager) { m.saver = s }
}

// WithMetrics records session outcomes.
func WithMetrics(mt *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source stamped on saved results.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// entry is one live session. mu serializes every operation on it.
type entry struct {
	mu         sync.Mutex
	state      *session.State
	examineeID string
	seed       uint64
	final      *session.FinalResult
	closed     bool
}

// Manager runs sessions against the pool snapshot current at their start.
type Manager struct {
	engine  *session.Engine
	pools   itempool.Provider
	priors  itempool.PriorProvider
	saver   ResultSaver
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager returns a Manager drawing pools from pools.
func NewManager(engine *session.Engine, pools itempool.Provider, opts ...Option) (*Manager, error) {
	if engine == nil {
		return nil, errors.New("new manager: nil engine")
	}
	if pools == nil {
		return nil, errors.New("new manager: nil pool provider")
	}
	m := &Manager{
		engine:   engine,
		pools:    pools,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start initializes a session for examineeID and returns its first item.
// An empty examineeID starts an anonymous session with the configured prior.
func (m *Manager) Start(ctx context.Context, examineeID string, seed uint64) (session.StepResult, error) {
	pool, err := m.pools.LoadPool(ctx)
	if err != nil {
		m.metrics.OperationError("start", "pool")
		return session.StepResult{}, fmt.Errorf("load pool: %w", err)
	}

	opts := session.InitOptions{SessionID: uuid.NewString(), Seed: seed}
	if m.priors != nil && examineeID != "" {
		theta, ok, err := m.priors.PriorTheta(ctx, examineeID)
		switch {
		case err != nil:
			m.logger.Warn("prior lookup failed, using configured prior",
				"examinee_id", examineeID, "error", err)
		case ok:
			opts.PriorMean = &theta
		}
	}

	state, res, err := m.engine.Initialize(pool, opts)
	if err != nil {
		m.metrics.OperationError("start", errorKind(err))
		return session.StepResult{}, err
	}

	m.mu.Lock()
	m.sessions[state.ID()] = &entry{state: state, examineeID: examineeID, seed: seed}
	m.mu.Unlock()

	m.metrics.SessionStarted(pool.Version())
	m.logger.Debug("session started",
		"session_id", state.ID(),
		"examinee_id", examineeID,
		"pool_version", pool.Version(),
	)
	return res, nil
}

// Answer records the response to the pending item. version must equal the
// Version of the last StepResult the caller saw.
func (m *Manager) Answer(ctx context.Context, sessionID string, version int, itemID string, correct bool) (session.StepResult, error) {
	if err := ctx.Err(); err != nil {
		return session.StepResult{}, err
	}
	e, err := m.acquire(sessionID)
	if err != nil {
		return session.StepResult{}, err
	}
	defer e.mu.Unlock()

	if got := e.state.Version(); got != version {
		m.metrics.OperationError("answer", "version_mismatch")
		return session.StepResult{}, fmt.Errorf("%w: session %s is at version %d, caller sent %d",
			ErrVersionMismatch, sessionID, got, version)
	}

	res, err := m.engine.ProcessResponse(e.state, itemID, correct)
	if err != nil {
		m.metrics.OperationError("answer", errorKind(err))
		return session.StepResult{}, err
	}

	fallback := false
	if rs := e.state.Responses(); len(rs) > 0 {
		fallback = rs[len(rs)-1].Fallback
	}
	m.metrics.Response(correct, fallback)
	if res.Complete {
		m.metrics.SessionStopped(string(res.StopReason))
	}
	return res, nil
}

// Finish finalizes a stopped session, persists it and closes it. When
// persistence fails the result is still returned and the session stays open
// so Finish can be retried.
func (m *Manager) Finish(ctx context.Context, sessionID string) (session.FinalResult, error) {
	e, err := m.acquire(sessionID)
	if err != nil {
		return session.FinalResult{}, err
	}
	defer e.mu.Unlock()

	if e.final == nil {
		final, err := m.engine.Finalize(e.state)
		if err != nil {
			m.metrics.OperationError("finish", errorKind(err))
			return session.FinalResult{}, err
		}
		e.final = &final
	}
	final := *e.final

	if m.saver != nil {
		rec := store.SessionRecord{
			ExamineeID: e.examineeID,
			Seed:       e.seed,
			Result:     final,
			FinishedAt: m.now(),
		}
		if err := m.saver.SaveResult(ctx, rec); err != nil {
			m.metrics.OperationError("finish", "persist")
			return final, fmt.Errorf("save result: %w", err)
		}
	}

	m.close(sessionID, e)
	m.metrics.SessionFinalized(final.ItemsAdministered, final.SE)
	m.metrics.SessionClosed()
	m.logger.Info("session finished",
		"session_id", sessionID,
		"examinee_id", e.examineeID,
		"items", final.ItemsAdministered,
		"score", final.Score.Value,
		"stop_reason", string(final.StopReason),
	)
	return final, nil
}

// Discard drops a session without finalizing it.
func (m *Manager) Discard(sessionID string) error {
	e, err := m.acquire(sessionID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	m.close(sessionID, e)
	m.metrics.SessionClosed()
	m.logger.Debug("session discarded", "session_id", sessionID, "items", e.state.ItemsAdministered())
	return nil
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// acquire looks up a session and locks it. The caller must unlock it.
func (m *Manager) acquire(sessionID string) (*entry, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return e, nil
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		m.metrics.OperationError("lookup", "not_found")
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return e, nil
}

// close unregisters a locked session.
func (m *Manager) close(sessionID string, e *entry) {
	e.closed = true
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// errorKind maps an error to a metrics label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, session.ErrInsufficientItemPool):
		return "insufficient_pool"
	case errors.Is(err, session.ErrUnexpectedItem):
		return "unexpected_item"
	case errors.Is(err, session.ErrSessionStateConflict):
		return "state_conflict"
	default:
		return "other"
	}
}
