package session

import (
	"errors"
	"fmt"

	"github.com/gioe/aiq/internal/selection"
	"github.com/gioe/aiq/internal/stopping"
)

// ErrInsufficientItemPool means the session cannot get another item, even
// with every constraint relaxed.
var ErrInsufficientItemPool = selection.ErrInsufficientItemPool

// ErrSessionStateConflict marks an operation the session's lifecycle state
// does not allow.
var ErrSessionStateConflict = errors.New("session state conflict")

// ErrUnexpectedItem is returned for a response to an item other than the one
// the session is waiting on.
var ErrUnexpectedItem = errors.New("unexpected item")

// StateConflictError describes a rejected lifecycle operation.
type StateConflictError struct {
	SessionID string
	Op        string
	Status    stopping.Status
	Detail    string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s: %s on session %s (%s): %s", ErrSessionStateConflict, e.Op, e.SessionID, e.Status, e.Detail)
}

// Is reports a match against ErrSessionStateConflict.
func (e *StateConflictError) Is(target error) bool {
	return target == ErrSessionStateConflict
}

func conflict(s *State, op, detail string) error {
	return &StateConflictError{SessionID: s.id, Op: op, Status: s.Status(), Detail: detail}
}
