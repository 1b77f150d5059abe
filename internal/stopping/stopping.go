// Package stopping decides after every response whether a session continues
// or stops, and why.
package stopping

import (
	"errors"
	"fmt"
)

// Reason is why a session stopped.
type Reason string

const (
	// ReasonNone is the reason of a session still in progress.
	ReasonNone Reason = ""
	// ReasonSEThreshold means the estimate became precise enough with every
	// category minimum met.
	ReasonSEThreshold Reason = "se_threshold"
	// ReasonMaxItems means the item ceiling was reached.
	ReasonMaxItems Reason = "max_items"
	// ReasonContentBalanceExhausted means no eligible item remains in the pool.
	ReasonContentBalanceExhausted Reason = "content_balance_exhausted"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusInProgress accepts further responses.
	StatusInProgress Status = "in_progress"
	// StatusStopped is final; the session can only be finalized.
	StatusStopped Status = "stopped"
)

// ErrAlreadyStopped is returned when a stopped machine is advanced again.
var ErrAlreadyStopped = errors.New("session already stopped")

// ErrInvalidRules is returned by Rules.Validate.
var ErrInvalidRules = errors.New("invalid stopping rules")

// Rules are the configured stopping thresholds.
type Rules struct {
	MinItems    int     `yaml:"min_items" env:"MIN_ITEMS" validate:"gte=1"`
	MaxItems    int     `yaml:"max_items" env:"MAX_ITEMS" validate:"gtefield=MinItems"`
	SEThreshold float64 `yaml:"se_threshold" env:"SE_THRESHOLD" validate:"gt=0"`
}

// DefaultRules returns the stock thresholds.
func DefaultRules() Rules {
	return Rules{MinItems: 5, MaxItems: 30, SEThreshold: 0.30}
}

// Validate checks the rules are internally consistent.
func (r Rules) Validate() error {
	switch {
	case r.MinItems < 1:
		return fmt.Errorf("%w: min_items %d < 1", ErrInvalidRules, r.MinItems)
	case r.MaxItems < r.MinItems:
		return fmt.Errorf("%w: max_items %d < min_items %d", ErrInvalidRules, r.MaxItems, r.MinItems)
	case !(r.SEThreshold > 0):
		return fmt.Errorf("%w: se_threshold must be positive", ErrInvalidRules)
	}
	return nil
}

// Input is the session snapshot a decision is made on.
type Input struct {
	Administered      int
	SE                float64
	MinimumsMet       bool
	EligibleRemaining int
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Stop   bool
	Reason Reason
}

// Evaluate applies the rules in fixed order: the minimum-item floor first,
// then precision, then the maximum-item ceiling, then pool exhaustion.
func (r Rules) Evaluate(in Input) Decision {
	switch {
	case in.Administered < r.MinItems:
		return Decision{}
	case in.SE < r.SEThreshold && in.MinimumsMet:
		return Decision{Stop: true, Reason: ReasonSEThreshold}
	case in.Administered >= r.MaxItems:
		return Decision{Stop: true, Reason: ReasonMaxItems}
	case in.EligibleRemaining <= 0:
		return Decision{Stop: true, Reason: ReasonContentBalanceExhausted}
	}
	return Decision{}
}

// Machine is the in_progress → stopped(reason) state machine of one session.
type Machine struct {
	rules  Rules
	status Status
	reason Reason
}

// NewMachine returns a machine in the in_progress state.
func NewMachine(rules Rules) *Machine {
	return &Machine{rules: rules, status: StatusInProgress}
}

// Status returns the current state.
func (m *Machine) Status() Status { return m.status }

// Reason returns the stop reason, empty while in progress.
func (m *Machine) Reason() Reason { return m.reason }

// Stopped reports whether the machine reached its terminal state.
func (m *Machine) Stopped() bool { return m.status == StatusStopped }

// Rules returns the thresholds the machine evaluates.
func (m *Machine) Rules() Rules { return m.rules }

// Advance evaluates the rules and transitions to stopped when one fires.
func (m *Machine) Advance(in Input) (Decision, error) {
	if m.Stopped() {
		return Decision{}, fmt.Errorf("%w (%s)", ErrAlreadyStopped, m.reason)
	}
	d := m.rules.Evaluate(in)
	if d.Stop {
		m.status = StatusStopped
		m.reason = d.Reason
	}
	return d, nil
}

// ForceStop moves the machine to stopped with the given reason. It is used
// when the pool runs dry before the rules would otherwise stop the session.
func (m *Machine) ForceStop(reason Reason) error {
	if m.Stopped() {
		return fmt.Errorf("%w (%s)", ErrAlreadyStopped, m.reason)
	}
	m.status = StatusStopped
	m.reason = reason
	return nil
}
