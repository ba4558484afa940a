package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/daikw/modcast/internal/persona"
	"github.com/daikw/modcast/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 430*time.Millisecond, cfg.ChunkDuration)
	assert.Equal(t, 100*time.Millisecond, cfg.CompletionBuffer)
	assert.Equal(t, 30*time.Second, cfg.HumanTimeout)
	assert.Equal(t, 3, cfg.MaxConsecutiveFailures)
	assert.Equal(t, 12, cfg.MaxTurns)
	assert.Equal(t, 4, cfg.ContextTurns)
	assert.Equal(t, 0, cfg.HistoryLimit)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, 430*time.Millisecond, cfg.ChunkDuration)
	assert.Equal(t, time.Duration(0), cfg.CompletionBuffer, "zero buffer is a valid setting")
	assert.Equal(t, 30*time.Second, cfg.HumanTimeout)
	assert.Equal(t, 3, cfg.MaxConsecutiveFailures)
	assert.Equal(t, 4, cfg.ContextTurns)
	assert.Equal(t, 0, cfg.MaxTurns, "zero max turns means unlimited")
	assert.Equal(t, 0, cfg.HistoryLimit)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"chunk duration", func(c *Config) { c.ChunkDuration = -1 }},
		{"buffer", func(c *Config) { c.CompletionBuffer = -1 }},
		{"human timeout", func(c *Config) { c.HumanTimeout = -1 }},
		{"failures", func(c *Config) { c.MaxConsecutiveFailures = -1 }},
		{"max turns", func(c *Config) { c.MaxTurns = -1 }},
		{"context turns", func(c *Config) { c.ContextTurns = -1 }},
		{"history limit", func(c *Config) { c.HistoryLimit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, persona.ErrConfig))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{fmt.Errorf("%w: dup", persona.ErrConfig), KindConfig},
		{fmt.Errorf("%w: refused", session.ErrConnection), KindConnection},
		{fmt.Errorf("%w: bad json", session.ErrProtocol), KindProtocol},
		{fmt.Errorf("wrapped: %w", ErrInvalidState), KindInvalidState},
		{ErrAlreadyRunning, KindInvalidState},
		{ErrTimeout, KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("something else"), KindConnection},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "persona_turn_active", StatePersonaTurnActive.String())
	assert.Equal(t, "awaiting_human_input", StateAwaitingHumanInput.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())

	text, err := StateAwaitingHumanInput.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "awaiting_human_input", string(text))
}

func TestBuildPrompt(t *testing.T) {
	participants := []string{"A", "B", "Human"}

	t.Run("first turn", func(t *testing.T) {
		prompt := buildPrompt(promptInput{
			Speaker:      "A",
			Participants: participants,
			Topic:        "tabs or spaces",
			ContextTurns: 4,
		})
		assert.True(t, strings.HasPrefix(prompt, "PARTICIPANTS: A, B, Human\n"))
		assert.Contains(t, prompt, "TOPIC: tabs or spaces")
		assert.Contains(t, prompt, "You are A.")
		assert.Contains(t, prompt, "Open the discussion")
		assert.Contains(t, prompt, "select_next_speaker")
		assert.NotContains(t, prompt, "RECENT CONVERSATION")
	})

	t.Run("recent turns only", func(t *testing.T) {
		var history []TurnRecord
		for i := 1; i <= 6; i++ {
			history = append(history, TurnRecord{Turn: i, Speaker: "A", Text: fmt.Sprintf("line %d", i)})
		}
		history = append(history, TurnRecord{Turn: 7, Speaker: "B"})

		prompt := buildPrompt(promptInput{
			Speaker:      "A",
			Participants: participants,
			Topic:        "tabs or spaces",
			History:      history,
			ContextTurns: 4,
		})
		assert.Contains(t, prompt, "RECENT CONVERSATION:")
		assert.NotContains(t, prompt, "line 3")
		assert.Contains(t, prompt, "A: line 4")
		assert.Contains(t, prompt, "A: line 6")
		assert.Contains(t, prompt, "B: [no response]")
		assert.NotContains(t, prompt, "TOPIC:")
		assert.Contains(t, prompt, "Respond to the last speaker")
	})

	t.Run("human audio", func(t *testing.T) {
		prompt := buildPrompt(promptInput{
			Speaker:      "B",
			Participants: participants,
			History:      []TurnRecord{{Speaker: "Human", Human: true, Text: humanSpokeText}},
			ContextTurns: 4,
			HumanAudio:   true,
		})
		assert.Contains(t, prompt, "Human: "+humanSpokeText)
		assert.Contains(t, prompt, "The human just spoke")
	})
}
