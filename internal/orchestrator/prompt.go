package orchestrator

import (
	"fmt"
	"strings"
)

// History placeholders for human turns, whose audio is not transcribed.
const (
	humanSpokeText  = "[spoke via microphone]"
	humanSilentText = "[stayed silent]"
)

// promptInput is what a persona sees of the conversation so far.
type promptInput struct {
	Speaker      string
	Participants []string
	Topic        string
	History      []TurnRecord
	ContextTurns int
	HumanAudio   bool
}

// buildPrompt renders the text input of a persona turn: the participant
// list, the last few turns, and an instruction to hand over the floor.
func buildPrompt(in promptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PARTICIPANTS: %s\n\n", strings.Join(in.Participants, ", "))

	recent := in.History
	if in.ContextTurns > 0 && len(recent) > in.ContextTurns {
		recent = recent[len(recent)-in.ContextTurns:]
	}

	if len(in.History) == 0 {
		b.WriteString("This is the beginning of the discussion.\n")
		fmt.Fprintf(&b, "TOPIC: %s\n\n", in.Topic)
	} else {
		b.WriteString("RECENT CONVERSATION:\n")
		for _, rec := range recent {
			text := strings.TrimSpace(rec.Text)
			if text == "" {
				text = "[no response]"
			}
			fmt.Fprintf(&b, "%s: %s\n", rec.Speaker, text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "You are %s.\n", in.Speaker)
	switch {
	case in.HumanAudio:
		b.WriteString("1. The human just spoke. Their audio follows; respond to them directly in two or three sentences.\n")
	case len(in.History) == 0:
		b.WriteString("1. Open the discussion on the topic in two or three sentences.\n")
	default:
		b.WriteString("1. Respond to the last speaker in two or three sentences.\n")
	}
	b.WriteString("2. Then you MUST call select_next_speaker to choose who speaks next.")

	return b.String()
}
