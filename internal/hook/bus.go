package hook

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler receives events. A returned error is logged and otherwise ignored.
type Handler func(Event) error

type subscription struct {
	id      int
	kind    Kind
	all     bool
	handler Handler
}

// Bus delivers events to subscribers synchronously, in subscription order.
// A failing or panicking handler never prevents delivery to the others and
// never reaches the emitter. Handlers run on the emitter's goroutine and
// must not block; hand slow work to another goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// On subscribes handler to one kind of event. The returned function removes
// the subscription.
func (b *Bus) On(kind Kind, handler Handler) func() {
	return b.add(subscription{kind: kind, handler: handler})
}

// OnAll subscribes handler to every event.
func (b *Bus) OnAll(handler Handler) func() {
	return b.add(subscription{all: true, handler: handler})
}

func (b *Bus) add(sub subscription) func() {
	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit stamps the event with an ID and time when missing and hands it to
// every matching handler.
func (b *Bus) Emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.all && s.kind != event.Kind {
			continue
		}
		if err := call(s.handler, event); err != nil {
			log.Warn().
				Err(err).
				Str("kind", string(event.Kind)).
				Str("speaker", event.Speaker).
				Msg("Event handler failed")
		}
	}
}

func call(handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(event)
}
