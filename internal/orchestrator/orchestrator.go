// Package orchestrator runs turn-taking conversations between personas and
// an optional human participant.
//
// Exactly one turn is active at a time. After a persona's stream completes,
// the orchestrator waits until the streamed audio has had time to play
// (see voice.ChunkTracker) before handing the floor to the next speaker.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/daikw/modcast/internal/hook"
	"github.com/daikw/modcast/internal/persona"
	"github.com/daikw/modcast/internal/session"
	"github.com/daikw/modcast/internal/voice"
	"github.com/rs/zerolog/log"
)

// Reasons a conversation ends, carried by conversation-complete events.
const (
	EndStopped  = "stopped"
	EndCanceled = "canceled"
	EndMaxTurns = "max-turns"
	EndFailures = "failures"
)

// Orchestrator drives conversations among the personas of a registry.
// It is safe for concurrent use; the conversation itself runs on a single
// goroutine started by Start.
type Orchestrator struct {
	registry     *persona.Registry
	provider     session.Provider
	cfg          Config
	bus          *hook.Bus
	tracker      *voice.ChunkTracker
	participants []string
	humanCh      chan struct{}

	mu           sync.Mutex
	state        State
	running      bool
	stopped      bool
	current      string
	turnCount    int
	history      []TurnRecord
	pendingAudio []byte
	session      session.Session
	cancel       context.CancelFunc
	done         chan struct{}
}

// New creates an orchestrator. Zero durations and limits in cfg take their
// defaults; MaxTurns and HistoryLimit keep zero as unlimited.
func New(registry *persona.Registry, provider session.Provider, cfg Config) (*Orchestrator, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("%w: no personas registered", persona.ErrConfig)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: no session provider", persona.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	participants := registry.Participants()
	if cfg.NoHuman {
		participants = registry.Names()
	}

	done := make(chan struct{})
	close(done)

	return &Orchestrator{
		registry:     registry,
		provider:     provider,
		cfg:          cfg,
		bus:          hook.NewBus(),
		tracker:      voice.NewChunkTracker(cfg.ChunkDuration, cfg.CompletionBuffer),
		participants: participants,
		humanCh:      make(chan struct{}, 1),
		done:         done,
	}, nil
}

// Events returns the bus conversation events are emitted on.
func (o *Orchestrator) Events() *hook.Bus {
	return o.bus
}

// Participants returns the selectable speakers in registration order.
func (o *Orchestrator) Participants() []string {
	return slices.Clone(o.participants)
}

// Start begins a conversation seeded with topic and returns immediately.
// The conversation ends on Stop, when ctx is canceled, after MaxTurns, or
// after MaxConsecutiveFailures failed turns in a row.
func (o *Orchestrator) Start(ctx context.Context, topic string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrAlreadyRunning
	}
	if strings.TrimSpace(topic) == "" {
		topic = persona.DefaultTopic
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.stopped = false
	o.state = StateIdle
	o.current = ""
	o.turnCount = 0
	o.history = nil
	o.pendingAudio = nil
	o.cancel = cancel
	o.done = make(chan struct{})

	go o.run(runCtx, topic, o.done)
	return nil
}

// Stop ends the running conversation and closes the active session.
// It returns without waiting; use Done for that. Calling Stop when no
// conversation is running does nothing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running || o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.pendingAudio = nil
	cancel, sess := o.cancel, o.session
	o.mu.Unlock()

	log.Info().Msg("Stop requested")
	cancel()
	if sess != nil {
		if err := sess.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close session")
		}
	}
}

// Done returns a channel closed when the current conversation has ended
// and conversation-complete has been emitted.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// SubmitHumanAudio hands the human's PCM16 audio to the next persona.
// It fails with ErrInvalidState unless the human holds the floor and no
// audio has been submitted yet for this turn.
func (o *Orchestrator) SubmitHumanAudio(audio []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateAwaitingHumanInput {
		return fmt.Errorf("%w: cannot accept human audio while %s", ErrInvalidState, o.state)
	}
	if o.pendingAudio != nil {
		return fmt.Errorf("%w: human audio already submitted for this turn", ErrInvalidState)
	}
	if len(audio) == 0 {
		return errors.New("human audio is empty")
	}

	o.pendingAudio = bytes.Clone(audio)
	select {
	case o.humanCh <- struct{}{}:
	default:
	}
	log.Debug().Int("bytes", len(audio)).Msg("Human audio received")
	return nil
}

// Status returns a snapshot of the conversation.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		Running:        o.running,
		CurrentSpeaker: o.current,
		TurnCount:      o.turnCount,
		State:          o.state,
	}
}

// History returns a copy of the recorded turns.
func (o *Orchestrator) History() []TurnRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.history)
}

type turnResult struct {
	completed bool
	selection *session.Selection
	wait      time.Duration
}

func (o *Orchestrator) run(ctx context.Context, topic string, done chan struct{}) {
	reason := EndStopped
	defer func() {
		o.finish(reason, done)
	}()

	log.Info().
		Str("topic", topic).
		Strs("participants", o.participants).
		Str("provider", o.provider.Name()).
		Msg("Conversation started")

	idx := 0
	failures := 0
	var humanAudio []byte

	for {
		res := o.personaTurn(ctx, idx, topic, humanAudio)
		humanAudio = nil
		if ctx.Err() != nil {
			reason = o.stopReason()
			return
		}

		// Only turns that never completed count; a completed turn with a
		// malformed selection is recorded as failed but resets the count.
		if res.completed {
			failures = 0
		} else {
			failures++
		}

		if !sleep(ctx, res.wait) {
			reason = o.stopReason()
			return
		}
		if failures >= o.cfg.MaxConsecutiveFailures {
			log.Error().Int("failures", failures).Msg("Too many consecutive failed turns, stopping")
			reason = EndFailures
			return
		}
		if o.turnLimitReached() {
			reason = EndMaxTurns
			return
		}

		from := o.registry.At(idx).Name
		next, toHuman, why := o.resolveNext(idx, res.selection)
		if !toHuman {
			o.speakerChanged(from, o.registry.At(next).Name, why)
			idx = next
			continue
		}

		o.speakerChanged(from, o.registry.HumanName(), why)
		audio, ok := o.humanTurn(ctx)
		if !ok {
			reason = o.stopReason()
			return
		}
		if o.turnLimitReached() {
			reason = EndMaxTurns
			return
		}

		next = o.fallback(idx)
		why = hook.ReasonFallback
		if audio == nil {
			why = hook.ReasonTimeout
		}
		o.speakerChanged(from, o.registry.At(next).Name, why)
		idx = next
		humanAudio = audio
	}
}

// personaTurn streams one persona turn to completion and records it.
func (o *Orchestrator) personaTurn(ctx context.Context, idx int, topic string, humanAudio []byte) turnResult {
	p := o.registry.At(idx)

	o.mu.Lock()
	o.state = StatePersonaTurnActive
	o.current = p.Name
	o.turnCount++
	turn := o.turnCount
	history := slices.Clone(o.history)
	o.mu.Unlock()

	o.tracker.BeginTurn()
	rec := TurnRecord{Turn: turn, Speaker: p.Name, StartedAt: time.Now()}

	o.emit(hook.Event{Kind: hook.TurnStarted, Speaker: p.Name, Turn: turn, Time: rec.StartedAt})
	log.Info().
		Str("persona", p.Name).
		Int("turn", turn).
		Bool("human_audio", len(humanAudio) > 0).
		Msg("Turn started")

	req := session.Request{
		Persona:      p,
		Participants: o.participants,
		Prompt: buildPrompt(promptInput{
			Speaker:      p.Name,
			Participants: o.participants,
			Topic:        topic,
			History:      history,
			ContextTurns: o.cfg.ContextTurns,
			HumanAudio:   len(humanAudio) > 0,
		}),
		Audio: humanAudio,
	}

	text, completed, selection, failure := o.stream(ctx, req, turn)

	rec.FinishedAt = time.Now()
	rec.Text = text
	rec.Chunks = o.tracker.Count()
	rec.AudioBytes = o.tracker.Bytes()

	if ctx.Err() != nil {
		o.record(rec)
		return turnResult{}
	}

	if failure != nil {
		rec.Failed = true
		rec.ErrKind = Classify(failure)
		rec.Reason = failure.Error()
		o.emit(hook.Event{
			Kind:    hook.TurnFailed,
			Time:    rec.FinishedAt,
			Speaker: p.Name,
			Turn:    turn,
			ErrKind: string(rec.ErrKind),
			Message: rec.Reason,
		})
		log.Warn().
			Err(failure).
			Str("persona", p.Name).
			Int("turn", turn).
			Str("kind", string(rec.ErrKind)).
			Bool("completed", completed).
			Msg("Turn failed")
	}

	wait := o.tracker.CompletionWait()
	o.record(rec)
	o.emit(hook.Event{
		Kind:    hook.TurnFinished,
		Time:    rec.FinishedAt,
		Speaker: p.Name,
		Turn:    turn,
		Text:    text,
		Chunks:  rec.Chunks,
		Wait:    wait,
	})
	log.Info().
		Str("persona", p.Name).
		Int("turn", turn).
		Int("chunks", rec.Chunks).
		Dur("wait", wait).
		Msg("Turn finished")

	return turnResult{completed: completed, selection: selection, wait: wait}
}

// stream opens the session for req and consumes its events. failure is the
// error that broke the turn, or a protocol error from a malformed speaker
// selection on an otherwise completed turn.
func (o *Orchestrator) stream(ctx context.Context, req session.Request, turn int) (text string, completed bool, selection *session.Selection, failure error) {
	sess, err := o.provider.Open(ctx, req)
	if err != nil {
		if !errors.Is(err, session.ErrConnection) && !errors.Is(err, session.ErrProtocol) {
			err = fmt.Errorf("%w: %v", session.ErrConnection, err)
		}
		return "", false, nil, err
	}

	o.mu.Lock()
	o.session = sess
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.session = nil
		o.mu.Unlock()
		if err := sess.Close(); err != nil {
			log.Debug().Err(err).Str("persona", req.Persona.Name).Msg("Failed to close session")
		}
	}()

	var b strings.Builder
events:
	for ev := range sess.Events() {
		switch ev.Kind {
		case session.KindAudioChunk:
			o.tracker.RecordChunk(len(ev.Audio))
			o.emit(hook.Event{
				Kind:     hook.AudioChunk,
				Speaker:  req.Persona.Name,
				Turn:     turn,
				Sequence: o.tracker.Count(),
				Audio:    ev.Audio,
				Bytes:    len(ev.Audio),
			})

		case session.KindTextDelta:
			b.WriteString(ev.Text)

		case session.KindFunctionCall:
			if selection != nil {
				log.Debug().Str("persona", req.Persona.Name).Msg("Ignoring additional function call")
				continue
			}
			sel, err := session.ParseSelection(ev.Call)
			if err != nil {
				failure = err
				continue
			}
			selection = &sel

		case session.KindTurnComplete:
			completed = true
			break events

		case session.KindError:
			failure = ev.Err
			if failure == nil {
				failure = fmt.Errorf("%w: session failed", session.ErrConnection)
			}
			// An aborted turn has no say in who speaks next.
			selection = nil
			break events
		}
	}

	if !completed && failure == nil && ctx.Err() == nil {
		failure = fmt.Errorf("%w: stream ended without completion", session.ErrProtocol)
	}
	return b.String(), completed, selection, failure
}

// humanTurn gives the floor to the human until audio arrives or the
// timeout elapses. It returns the audio (nil on timeout) and false when the
// conversation was stopped meanwhile.
func (o *Orchestrator) humanTurn(ctx context.Context) ([]byte, bool) {
	name := o.registry.HumanName()

	select {
	case <-o.humanCh:
	default:
	}

	o.mu.Lock()
	o.state = StateAwaitingHumanInput
	o.current = name
	o.turnCount++
	turn := o.turnCount
	o.pendingAudio = nil
	o.mu.Unlock()

	rec := TurnRecord{Turn: turn, Speaker: name, Human: true, StartedAt: time.Now()}
	// The timeout runs from the start of the turn, not from when handlers return.
	timer := time.NewTimer(o.cfg.HumanTimeout)
	defer timer.Stop()

	o.emit(hook.Event{
		Kind:    hook.HumanTurnStarted,
		Time:    rec.StartedAt,
		Speaker: name,
		Turn:    turn,
		Timeout: o.cfg.HumanTimeout,
	})
	log.Info().Int("turn", turn).Dur("timeout", o.cfg.HumanTimeout).Msg("Waiting for human input")

	select {
	case <-ctx.Done():
	case <-o.humanCh:
	case <-timer.C:
	}

	o.mu.Lock()
	audio := o.pendingAudio
	o.pendingAudio = nil
	if ctx.Err() != nil {
		o.mu.Unlock()
		return nil, false
	}
	o.state = StatePersonaTurnActive
	o.mu.Unlock()

	rec.FinishedAt = time.Now()
	ended := "audio"
	if audio == nil {
		ended = hook.ReasonTimeout
		rec.Text = humanSilentText
		rec.Reason = ErrTimeout.Error()
		log.Info().Int("turn", turn).Msg("Human input timed out")
	} else {
		rec.Text = humanSpokeText
		rec.AudioBytes = int64(len(audio))
	}
	o.record(rec)

	o.emit(hook.Event{
		Kind:    hook.HumanTurnEnded,
		Time:    rec.FinishedAt,
		Speaker: name,
		Turn:    turn,
		Reason:  ended,
		Bytes:   len(audio),
	})
	return audio, true
}

// resolveNext picks the speaker after the persona at current. A selection
// naming another persona, or the human, is honored; anything else falls
// back to the next persona in registration order.
func (o *Orchestrator) resolveNext(current int, sel *session.Selection) (next int, human bool, reason string) {
	if sel != nil {
		idx, isHuman, ok := o.lookup(*sel)
		if ok && (isHuman || idx != current) {
			return idx, isHuman, hook.ReasonFunctionCall
		}
		log.Debug().
			Str("speaker", sel.Speaker).
			Int("index", sel.Index).
			Str("persona", o.registry.At(current).Name).
			Msg("Unusable speaker selection, falling back")
	}
	return o.fallback(current), false, hook.ReasonFallback
}

// lookup maps a selection onto a persona index, or the human (index Len).
func (o *Orchestrator) lookup(sel session.Selection) (int, bool, bool) {
	n := o.registry.Len()
	if sel.Speaker != "" {
		if !o.cfg.NoHuman && o.registry.IsHuman(sel.Speaker) {
			return n, true, true
		}
		if p, ok := o.registry.Resolve(sel.Speaker); ok {
			return o.registry.Index(p.Name), false, true
		}
		return -1, false, false
	}
	switch {
	case sel.Index >= 0 && sel.Index < n:
		return sel.Index, false, true
	case sel.Index == n && !o.cfg.NoHuman:
		return n, true, true
	}
	return -1, false, false
}

func (o *Orchestrator) fallback(current int) int {
	return (current + 1) % o.registry.Len()
}

func (o *Orchestrator) speakerChanged(from, to, reason string) {
	o.emit(hook.Event{Kind: hook.SpeakerChanged, From: from, To: to, Reason: reason})
	log.Info().Str("from", from).Str("to", to).Str("reason", reason).Msg("Speaker changed")
}

func (o *Orchestrator) record(rec TurnRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, rec)
	if limit := o.cfg.HistoryLimit; limit > 0 && len(o.history) > limit {
		o.history = slices.Clone(o.history[len(o.history)-limit:])
	}
}

func (o *Orchestrator) turnLimitReached() bool {
	if o.cfg.MaxTurns == 0 {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turnCount >= o.cfg.MaxTurns
}

func (o *Orchestrator) stopReason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return EndStopped
	}
	return EndCanceled
}

func (o *Orchestrator) finish(reason string, done chan struct{}) {
	o.mu.Lock()
	o.state = StateStopped
	o.running = false
	o.current = ""
	o.pendingAudio = nil
	o.session = nil
	cancel := o.cancel
	turns := o.turnCount
	o.mu.Unlock()

	cancel()
	o.emit(hook.Event{Kind: hook.ConversationComplete, Turn: turns, Reason: reason})
	log.Info().Int("turns", turns).Str("reason", reason).Msg("Conversation complete")
	close(done)
}

func (o *Orchestrator) emit(event hook.Event) {
	o.bus.Emit(event)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
