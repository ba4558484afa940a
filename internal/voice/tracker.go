package voice

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Default timing of streamed audio chunks
const (
	DefaultChunkDuration    = 430 * time.Millisecond
	DefaultCompletionBuffer = 100 * time.Millisecond
)

// ChunkTracker estimates when a turn's audio finishes playing on the
// remote client. Only a counter is kept, so recording is O(1) in memory
// no matter how many chunks arrive.
//
// A tracker belongs to the single active turn and is not safe for
// concurrent use.
type ChunkTracker struct {
	chunkDuration time.Duration
	buffer        time.Duration
	count         int
	bytes         int64
}

// NewChunkTracker creates a tracker. A non-positive chunk duration or a
// negative buffer takes the default; a zero buffer is kept.
func NewChunkTracker(chunkDuration, buffer time.Duration) *ChunkTracker {
	if chunkDuration <= 0 {
		chunkDuration = DefaultChunkDuration
	}
	if buffer < 0 {
		buffer = DefaultCompletionBuffer
	}
	return &ChunkTracker{
		chunkDuration: chunkDuration,
		buffer:        buffer,
	}
}

// BeginTurn resets the counters for a new turn.
func (t *ChunkTracker) BeginTurn() {
	if t.count > 0 {
		log.Debug().Int("previous_chunks", t.count).Msg("Reset chunk tracker")
	}
	t.count = 0
	t.bytes = 0
}

// RecordChunk counts one audio chunk of the given size.
func (t *ChunkTracker) RecordChunk(byteLength int) {
	t.count++
	t.bytes += int64(byteLength)
}

// Count returns the number of chunks recorded since BeginTurn.
func (t *ChunkTracker) Count() int {
	return t.count
}

// Bytes returns the payload bytes recorded since BeginTurn.
func (t *ChunkTracker) Bytes() int64 {
	return t.bytes
}

// ChunkDuration returns the nominal playback length of one chunk.
func (t *ChunkTracker) ChunkDuration() time.Duration {
	return t.chunkDuration
}

// CompletionWait is how long to wait after the stream completes before the
// next speaker may start: count * chunk duration + buffer.
func (t *ChunkTracker) CompletionWait() time.Duration {
	return time.Duration(t.count)*t.chunkDuration + t.buffer
}
