package orchestrator

import "time"

// State is the phase of a conversation
type State int

const (
	StateIdle State = iota
	StatePersonaTurnActive
	StateAwaitingHumanInput
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePersonaTurnActive:
		return "persona_turn_active"
	case StateAwaitingHumanInput:
		return "awaiting_human_input"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of a conversation for hosts.
type Status struct {
	Running        bool   `json:"running"`
	CurrentSpeaker string `json:"current_speaker,omitempty"`
	TurnCount      int    `json:"turn_count"`
	State          State  `json:"state"`
}

// TurnRecord is one entry of the conversation history.
type TurnRecord struct {
	Turn    int    `json:"turn"`
	Speaker string `json:"speaker"`
	Human   bool   `json:"human,omitempty"`
	Text    string `json:"text,omitempty"`
	Chunks  int    `json:"chunks"`
	// AudioBytes is the size of generated audio, or of the human's input.
	AudioBytes int64 `json:"audio_bytes,omitempty"`

	Failed  bool   `json:"failed,omitempty"`
	ErrKind Kind   `json:"error_kind,omitempty"`
	Reason  string `json:"reason,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
