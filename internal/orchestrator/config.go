package orchestrator

import (
	"fmt"
	"time"

	"github.com/daikw/modcast/internal/persona"
	"github.com/daikw/modcast/internal/voice"
)

// Default orchestration settings
const (
	DefaultHumanTimeout           = 30 * time.Second
	DefaultMaxConsecutiveFailures = 3
	DefaultMaxTurns               = 12
	DefaultContextTurns           = 4
)

// Config holds the timing and limits of a conversation.
type Config struct {
	// ChunkDuration is the nominal playback length of one audio chunk.
	ChunkDuration time.Duration
	// CompletionBuffer is added to every completion wait. Zero means no
	// buffer; DefaultConfig sets voice.DefaultCompletionBuffer.
	CompletionBuffer time.Duration
	// HumanTimeout bounds how long the human holds the floor.
	HumanTimeout time.Duration

	// MaxConsecutiveFailures stops the conversation after that many
	// turns in a row fail to complete.
	MaxConsecutiveFailures int
	// MaxTurns stops the conversation after that many turns, human turns
	// included. Zero means unlimited.
	MaxTurns int
	// ContextTurns is how many past turns each prompt repeats.
	ContextTurns int
	// HistoryLimit caps the kept history. Zero means unbounded.
	HistoryLimit int

	// NoHuman removes the human from the selectable participants.
	NoHuman bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ChunkDuration:          voice.DefaultChunkDuration,
		CompletionBuffer:       voice.DefaultCompletionBuffer,
		HumanTimeout:           DefaultHumanTimeout,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		MaxTurns:               DefaultMaxTurns,
		ContextTurns:           DefaultContextTurns,
	}
}

// Validate rejects negative settings.
func (c Config) Validate() error {
	switch {
	case c.ChunkDuration < 0:
		return fmt.Errorf("%w: chunk duration must not be negative", persona.ErrConfig)
	case c.CompletionBuffer < 0:
		return fmt.Errorf("%w: completion buffer must not be negative", persona.ErrConfig)
	case c.HumanTimeout < 0:
		return fmt.Errorf("%w: human timeout must not be negative", persona.ErrConfig)
	case c.MaxConsecutiveFailures < 0:
		return fmt.Errorf("%w: max consecutive failures must not be negative", persona.ErrConfig)
	case c.MaxTurns < 0:
		return fmt.Errorf("%w: max turns must not be negative", persona.ErrConfig)
	case c.ContextTurns < 0:
		return fmt.Errorf("%w: context turns must not be negative", persona.ErrConfig)
	case c.HistoryLimit < 0:
		return fmt.Errorf("%w: history limit must not be negative", persona.ErrConfig)
	}
	return nil
}

// withDefaults fills zero durations and limits. MaxTurns and HistoryLimit
// keep zero as "unlimited" and CompletionBuffer keeps zero as no buffer.
func (c Config) withDefaults() Config {
	if c.ChunkDuration == 0 {
		c.ChunkDuration = voice.DefaultChunkDuration
	}
	if c.HumanTimeout == 0 {
		c.HumanTimeout = DefaultHumanTimeout
	}
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.ContextTurns == 0 {
		c.ContextTurns = DefaultContextTurns
	}
	return c
}
