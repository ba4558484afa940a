// Package session defines the streaming generation contract the
// orchestrator drives, and the adapters that implement it.
//
// A Session yields every AudioChunk and TextDelta of a turn, optionally a
// FunctionCall, and then exactly one terminal TurnComplete or Error event.
package session

import (
	"context"
	"errors"
	"iter"

	"github.com/daikw/modcast/internal/persona"
)

var (
	// ErrConnection reports a session that could not be opened or kept alive.
	ErrConnection = errors.New("connection error")
	// ErrProtocol reports an unexpected or malformed message from the upstream.
	ErrProtocol = errors.New("protocol error")
)

// Kind identifies a session event
type Kind int

const (
	KindAudioChunk Kind = iota + 1
	KindTextDelta
	KindFunctionCall
	KindTurnComplete
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindAudioChunk:
		return "audio_chunk"
	case KindTextDelta:
		return "text_delta"
	case KindFunctionCall:
		return "function_call"
	case KindTurnComplete:
		return "turn_complete"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether k ends a turn.
func (k Kind) Terminal() bool {
	return k == KindTurnComplete || k == KindError
}

// Event is one item of a session's stream.
type Event struct {
	Kind  Kind
	Audio []byte        // KindAudioChunk
	Text  string        // KindTextDelta
	Call  *FunctionCall // KindFunctionCall
	Err   error         // KindError
}

// Request describes the turn a session is opened for.
type Request struct {
	Persona      persona.Config
	Participants []string // selectable next speakers, human included
	Prompt       string   // prior conversation context and instructions
	Audio        []byte   // optional PCM16 human input sent after Prompt
}

// Provider opens generation sessions.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Open starts one persona turn. Canceling ctx ends the session.
	Open(ctx context.Context, req Request) (Session, error)
}

// Session is a single streamed turn.
type Session interface {
	// Events returns the lazy, finite event sequence of the turn.
	// It can be ranged over once.
	Events() iter.Seq[Event]

	// Close releases the session. It is safe to call more than once and
	// makes a pending Events iteration return.
	Close() error
}

// AudioChunk builds an audio event.
func AudioChunk(b []byte) Event { return Event{Kind: KindAudioChunk, Audio: b} }

// TextDelta builds a text event.
func TextDelta(s string) Event { return Event{Kind: KindTextDelta, Text: s} }

// FunctionCallRequested builds a function-call event.
func FunctionCallRequested(name, arguments string) Event {
	return Event{Kind: KindFunctionCall, Call: &FunctionCall{Name: name, Arguments: arguments}}
}

// TurnComplete builds the successful terminal event.
func TurnComplete() Event { return Event{Kind: KindTurnComplete} }

// Failed builds the failing terminal event.
func Failed(err error) Event { return Event{Kind: KindError, Err: err} }
