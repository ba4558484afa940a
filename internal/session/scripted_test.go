package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScripted_ReplaysTurnsInOrder(t *testing.T) {
	p := NewScripted(
		ScriptedTurn{Events: []Event{AudioChunk([]byte{1}), TurnComplete()}},
		ScriptedTurn{OpenErr: ErrConnection},
	)
	assert.Equal(t, "scripted", p.Name())

	sess, err := p.Open(context.Background(), Request{Prompt: "first"})
	require.NoError(t, err)
	events := collect(sess)
	require.Len(t, events, 2)
	assert.Equal(t, KindAudioChunk, events[0].Kind)
	assert.Equal(t, KindTurnComplete, events[1].Kind)
	require.NoError(t, sess.Close())

	_, err = p.Open(context.Background(), Request{Prompt: "second"})
	assert.True(t, errors.Is(err, ErrConnection))

	// Exhausted scripts complete immediately
	sess, err = p.Open(context.Background(), Request{Prompt: "third"})
	require.NoError(t, err)
	assert.Equal(t, []Event{TurnComplete()}, collect(sess))
	require.NoError(t, sess.Close())

	requests := p.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, "second", requests[1].Prompt)
	assert.Equal(t, 1, p.MaxConcurrent())
}

func TestScripted_StopsAtTerminalEvent(t *testing.T) {
	p := NewScripted(ScriptedTurn{Events: []Event{
		Failed(ErrProtocol),
		AudioChunk([]byte{1}),
	}})

	sess, err := p.Open(context.Background(), Request{})
	require.NoError(t, err)
	defer sess.Close()

	events := collect(sess)
	require.Len(t, events, 1)
	assert.Equal(t, KindError, events[0].Kind)
}

func TestScripted_CloseInterruptsDelay(t *testing.T) {
	p := NewScripted(ScriptedTurn{
		Events: []Event{AudioChunk([]byte{1}), TurnComplete()},
		Delay:  time.Hour,
	})

	sess, err := p.Open(context.Background(), Request{})
	require.NoError(t, err)

	done := make(chan []Event)
	go func() { done <- collect(sess) }()

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	select {
	case events := <-done:
		assert.Empty(t, events)
	case <-time.After(time.Second):
		t.Fatal("Close did not interrupt the session")
	}
}

func TestScripted_TracksConcurrentSessions(t *testing.T) {
	p := NewScripted()

	a, err := p.Open(context.Background(), Request{})
	require.NoError(t, err)
	b, err := p.Open(context.Background(), Request{})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	c, err := p.Open(context.Background(), Request{})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Equal(t, 2, p.MaxConcurrent())
}

func TestDemoTurn(t *testing.T) {
	req := testRequest()
	turn := DemoTurn(req)

	require.NotEmpty(t, turn.Events)
	assert.Equal(t, KindTurnComplete, turn.Events[len(turn.Events)-1].Kind)

	var chunks int
	var call *FunctionCall
	for _, ev := range turn.Events {
		switch ev.Kind {
		case KindAudioChunk:
			chunks++
		case KindFunctionCall:
			call = ev.Call
		}
	}
	assert.GreaterOrEqual(t, chunks, 2)
	assert.LessOrEqual(t, chunks, 4)

	sel, err := ParseSelection(call)
	require.NoError(t, err)
	assert.NotEqual(t, req.Persona.Name, sel.Speaker)
	assert.Contains(t, req.Participants, sel.Speaker)
}
