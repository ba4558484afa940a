package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SelectNextSpeaker is the function personas call to hand over the floor.
const SelectNextSpeaker = "select_next_speaker"

// FunctionCall is a structured request emitted by the model.
type FunctionCall struct {
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a function definition offered to the model.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SelectNextSpeakerTool describes select_next_speaker for the given participants.
func SelectNextSpeakerTool(participants []string) Tool {
	enum := make([]string, len(participants))
	copy(enum, participants)

	return Tool{
		Type: "function",
		Name: SelectNextSpeaker,
		Description: "Choose who should speak next in this discussion. Pick strategically based on " +
			"the conversation flow and who you want to challenge or respond to your points.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"next_speaker": map[string]any{
					"type":        "string",
					"enum":        enum,
					"description": "Choose from: " + strings.Join(participants, ", "),
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Why you chose this person to speak next",
				},
			},
			"required": []string{"next_speaker", "reason"},
		},
	}
}

// Selection is the parsed argument of a select_next_speaker call.
// Exactly one of Speaker (non-empty) or Index (>= 0) is set.
type Selection struct {
	Speaker string
	Index   int
	Reason  string
}

// ParseSelection decodes a select_next_speaker call. Any other function,
// malformed JSON, or a missing speaker yields ErrProtocol.
func ParseSelection(call *FunctionCall) (Selection, error) {
	if call == nil {
		return Selection{Index: -1}, fmt.Errorf("%w: no function call", ErrProtocol)
	}
	if call.Name != SelectNextSpeaker {
		return Selection{Index: -1}, fmt.Errorf("%w: unexpected function %q", ErrProtocol, call.Name)
	}

	var args struct {
		NextSpeaker json.RawMessage `json:"next_speaker"`
		Reason      string          `json:"reason"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return Selection{Index: -1}, fmt.Errorf("%w: malformed arguments: %v", ErrProtocol, err)
	}

	sel := Selection{Index: -1, Reason: args.Reason}
	raw := bytes.TrimSpace(args.NextSpeaker)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return sel, fmt.Errorf("%w: next_speaker missing", ErrProtocol)
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		name = strings.TrimSpace(name)
		if name == "" {
			return sel, fmt.Errorf("%w: next_speaker empty", ErrProtocol)
		}
		sel.Speaker = name
		return sel, nil
	}

	var index int
	if err := json.Unmarshal(raw, &index); err == nil {
		sel.Index = index
		return sel, nil
	}

	return sel, fmt.Errorf("%w: next_speaker has unsupported value %s", ErrProtocol, string(raw))
}
