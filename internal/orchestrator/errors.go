package orchestrator

import (
	"context"
	"errors"

	"github.com/daikw/modcast/internal/persona"
	"github.com/daikw/modcast/internal/session"
)

var (
	// ErrAlreadyRunning is returned by Start while a conversation is running.
	ErrAlreadyRunning = errors.New("conversation already running")
	// ErrInvalidState is returned by operations not valid in the current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrTimeout marks a human turn that ended without input.
	ErrTimeout = errors.New("human input timed out")
)

// Kind classifies failures reported on turn-failed events.
type Kind string

const (
	KindConfig       Kind = "config"
	KindConnection   Kind = "connection"
	KindProtocol     Kind = "protocol"
	KindInvalidState Kind = "invalid_state"
	KindTimeout      Kind = "timeout"
)

// Classify maps an error onto the failure taxonomy. Unknown errors from a
// session are treated as connection failures.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, persona.ErrConfig), errors.Is(err, persona.ErrNotFound):
		return KindConfig
	case errors.Is(err, session.ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrAlreadyRunning):
		return KindInvalidState
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindConnection
	}
}
