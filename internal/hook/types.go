// Package hook provides the conversation events the orchestrator emits and
// the bus that delivers them to subscribers.
package hook

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Kind names a conversation event
type Kind string

const (
	TurnStarted          Kind = "turn-started"
	AudioChunk           Kind = "audio-chunk"
	TurnFinished         Kind = "turn-finished"
	TurnFailed           Kind = "turn-failed"
	SpeakerChanged       Kind = "speaker-changed"
	HumanTurnStarted     Kind = "human-turn-started"
	HumanTurnEnded       Kind = "human-turn-ended"
	ConversationComplete Kind = "conversation-complete"
)

// Kinds lists every event kind in emission order of a typical turn.
var Kinds = []Kind{
	TurnStarted,
	AudioChunk,
	TurnFinished,
	TurnFailed,
	SpeakerChanged,
	HumanTurnStarted,
	HumanTurnEnded,
	ConversationComplete,
}

// Reasons carried by speaker-changed events
const (
	ReasonFunctionCall = "function-call"
	ReasonFallback     = "fallback"
	ReasonTimeout      = "timeout"
)

// Event is a single conversation event. Which fields are set depends on Kind:
//
//	turn-started           Speaker, Turn
//	audio-chunk            Speaker, Turn, Sequence, Audio, Bytes
//	turn-finished          Speaker, Turn, Chunks, Text, Wait
//	turn-failed            Speaker, Turn, ErrKind, Message
//	speaker-changed        From, To, Reason
//	human-turn-started     Speaker, Timeout
//	human-turn-ended       Speaker, Reason ("audio" or "timeout"), Bytes
//	conversation-complete  Turn (total turns), Reason
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	Speaker string    `json:"speaker,omitempty"`
	Turn    int       `json:"turn,omitempty"`

	Sequence int    `json:"sequence,omitempty"`
	Audio    []byte `json:"-"`
	Bytes    int    `json:"bytes,omitempty"`

	Chunks int           `json:"chunks,omitempty"`
	Text   string        `json:"text,omitempty"`
	Wait   time.Duration `json:"wait_ns,omitempty"`

	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason,omitempty"`

	ErrKind string        `json:"error_kind,omitempty"`
	Message string        `json:"message,omitempty"`
	Timeout time.Duration `json:"timeout_ns,omitempty"`
}

// ParseEvent reads a single JSON encoded event
func ParseEvent(r io.Reader) (*Event, error) {
	var event Event
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ReadEvents reads a JSON-lines event log as written by JSONLSink.
// Blank lines are skipped.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			return events, fmt.Errorf("failed to parse event on line %d: %w", line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}
