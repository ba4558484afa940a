package session

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"math/rand/v2"
	"sync"
	"time"
)

// ScriptedTurn is the canned outcome of one Open call.
type ScriptedTurn struct {
	// OpenErr makes Open fail instead of returning a session.
	OpenErr error
	Events  []Event
	// Delay is slept before each event.
	Delay time.Duration
}

// Scripted replays canned turns in order, without any network. Once the
// script is exhausted, Generate (if set) produces further turns; otherwise
// each extra turn completes immediately with no output.
type Scripted struct {
	Generate func(req Request) ScriptedTurn

	mu       sync.Mutex
	turns    []ScriptedTurn
	next     int
	requests []Request
	open     int
	maxOpen  int
}

// NewScripted creates a scripted provider
func NewScripted(turns ...ScriptedTurn) *Scripted {
	return &Scripted{turns: turns}
}

// Name returns the provider name
func (s *Scripted) Name() string {
	return "scripted"
}

// Open returns the next scripted turn as a session.
func (s *Scripted) Open(ctx context.Context, req Request) (Session, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)

	var turn ScriptedTurn
	switch {
	case s.next < len(s.turns):
		turn = s.turns[s.next]
		s.next++
	case s.Generate != nil:
		turn = s.Generate(req)
	default:
		turn = ScriptedTurn{Events: []Event{TurnComplete()}}
	}
	if turn.OpenErr != nil {
		s.mu.Unlock()
		return nil, turn.OpenErr
	}

	s.open++
	if s.open > s.maxOpen {
		s.maxOpen = s.open
	}
	s.mu.Unlock()

	sessCtx, cancel := context.WithCancel(ctx)
	return &scriptedSession{
		owner:  s,
		turn:   turn,
		ctx:    sessCtx,
		cancel: cancel,
	}, nil
}

// Requests returns a copy of every request received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// MaxConcurrent returns the highest number of simultaneously open sessions.
func (s *Scripted) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOpen
}

type scriptedSession struct {
	owner     *Scripted
	turn      ScriptedTurn
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	closeOnce sync.Once
}

func (ss *scriptedSession) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if ss.started {
			return
		}
		ss.started = true
		for _, ev := range ss.turn.Events {
			if ss.turn.Delay > 0 {
				timer := time.NewTimer(ss.turn.Delay)
				select {
				case <-ss.ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			} else if ss.ctx.Err() != nil {
				return
			}
			if !yield(ev) {
				return
			}
			if ev.Kind.Terminal() {
				return
			}
		}
	}
}

func (ss *scriptedSession) Close() error {
	ss.closeOnce.Do(func() {
		ss.cancel()
		ss.owner.mu.Lock()
		ss.owner.open--
		ss.owner.mu.Unlock()
	})
	return nil
}

// SelectSpeaker builds the function-call event choosing name.
func SelectSpeaker(name, reason string) Event {
	args, _ := json.Marshal(map[string]string{"next_speaker": name, "reason": reason})
	return FunctionCallRequested(SelectNextSpeaker, string(args))
}

// DemoTurn produces a plausible turn for dry runs: a line of text, a few
// chunks of silence, and a random choice of someone else to speak next.
func DemoTurn(req Request) ScriptedTurn {
	const chunkBytes = 4800 // 100ms of 24kHz PCM16

	name := req.Persona.Name
	events := []Event{
		TextDelta(fmt.Sprintf("%s here. ", name)),
		TextDelta("That is a bold claim, and I have thoughts."),
	}
	for i := 0; i < 2+rand.IntN(3); i++ {
		events = append(events, AudioChunk(make([]byte, chunkBytes)))
	}

	var others []string
	for _, p := range req.Participants {
		if p != name {
			others = append(others, p)
		}
	}
	if len(others) > 0 {
		next := others[rand.IntN(len(others))]
		events = append(events, SelectSpeaker(next, "I want to hear from "+next))
	}
	events = append(events, TurnComplete())

	return ScriptedTurn{Events: events, Delay: 20 * time.Millisecond}
}
