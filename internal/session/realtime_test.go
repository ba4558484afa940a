package session

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/daikw/modcast/internal/persona"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testRequest() Request {
	return Request{
		Persona: persona.Config{
			Name:              "Alex",
			Voice:             "ballad",
			Instructions:      "You are Alex",
			Temperature:       0.8,
			MaxResponseTokens: 1000,
		},
		Participants: []string{"Alex", "Sam", "Human"},
		Prompt:       "Say hi",
	}
}

// readClientEvents reads the three setup events a turn sends.
func readClientEvents(t *testing.T, conn *websocket.Conn) []map[string]any {
	var events []map[string]any
	for i := 0; i < 3; i++ {
		var m map[string]any
		if err := conn.ReadJSON(&m); err != nil {
			t.Errorf("read client event: %v", err)
			return events
		}
		events = append(events, m)
	}
	return events
}

func collect(s Session) []Event {
	var out []Event
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}

func TestRealtime_Turn(t *testing.T) {
	received := make(chan []map[string]any, 1)
	pcm := []byte{1, 2, 3, 4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.Equal(t, "realtime=v1", r.Header.Get("OpenAI-Beta"))
		assert.Equal(t, DefaultRealtimeModel, r.URL.Query().Get("model"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		received <- readClientEvents(t, conn)

		for _, msg := range []map[string]any{
			{"type": "session.updated"},
			{"type": "response.audio_transcript.delta", "delta": "Hello "},
			{"type": "response.audio.delta", "delta": base64.StdEncoding.EncodeToString(pcm)},
			{"type": "response.audio.delta", "delta": ""},
			{"type": "response.audio_transcript.delta", "delta": "there"},
			{"type": "response.function_call_arguments.done", "call_id": "call_1", "name": SelectNextSpeaker, "arguments": `{"next_speaker":"Sam","reason":"x"}`},
			{"type": "response.done"},
		} {
			if err := conn.WriteJSON(msg); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
	}))
	defer server.Close()

	provider := NewRealtime(RealtimeConfig{APIKey: "test-api-key", URL: wsURL(server)})
	assert.Equal(t, "openai", provider.Name())

	sess, err := provider.Open(context.Background(), testRequest())
	require.NoError(t, err)
	defer sess.Close()

	events := collect(sess)
	require.Len(t, events, 5)
	assert.Equal(t, TextDelta("Hello "), events[0])
	assert.Equal(t, KindAudioChunk, events[1].Kind)
	assert.Equal(t, pcm, events[1].Audio)
	assert.Equal(t, TextDelta("there"), events[2])
	require.Equal(t, KindFunctionCall, events[3].Kind)
	assert.Equal(t, "call_1", events[3].Call.CallID)
	assert.Equal(t, KindTurnComplete, events[4].Kind)

	// The stream cannot be restarted
	assert.Empty(t, collect(sess))

	client := <-received
	require.Len(t, client, 3)
	assert.Equal(t, "session.update", client[0]["type"])
	cfg := client[0]["session"].(map[string]any)
	assert.Equal(t, "You are Alex", cfg["instructions"])
	assert.Equal(t, "ballad", cfg["voice"])
	assert.Equal(t, 0.8, cfg["temperature"])
	assert.Equal(t, float64(1000), cfg["max_response_output_tokens"])
	tools := cfg["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, SelectNextSpeaker, tools[0].(map[string]any)["name"])

	assert.Equal(t, "conversation.item.create", client[1]["type"])
	content := client[1]["item"].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "input_text", content["type"])
	assert.Equal(t, "Say hi", content["text"])

	assert.Equal(t, "response.create", client[2]["type"])
	assert.True(t, strings.HasPrefix(client[2]["event_id"].(string), "evt_"))
}

func TestRealtime_AudioInput(t *testing.T) {
	received := make(chan []map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		received <- readClientEvents(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "response.done"})
	}))
	defer server.Close()

	req := testRequest()
	req.Audio = []byte("human speech")

	sess, err := NewRealtime(RealtimeConfig{APIKey: "k", URL: wsURL(server)}).Open(context.Background(), req)
	require.NoError(t, err)
	defer sess.Close()

	events := collect(sess)
	require.Len(t, events, 1)
	assert.Equal(t, KindTurnComplete, events[0].Kind)

	client := <-received
	content := client[1]["item"].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "input_text", content[0].(map[string]any)["type"])
	audio := content[1].(map[string]any)
	assert.Equal(t, "input_audio", audio["type"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(req.Audio), audio["audio"])
}

func TestRealtime_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readClientEvents(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "response.audio.delta", "delta": base64.StdEncoding.EncodeToString([]byte{9, 9})})
		_ = conn.WriteJSON(map[string]any{"type": "error", "error": map[string]any{"code": "rate_limit", "message": "slow down"}})
	}))
	defer server.Close()

	sess, err := NewRealtime(RealtimeConfig{APIKey: "k", URL: wsURL(server)}).Open(context.Background(), testRequest())
	require.NoError(t, err)
	defer sess.Close()

	events := collect(sess)
	require.Len(t, events, 2)
	assert.Equal(t, KindAudioChunk, events[0].Kind)
	assert.Equal(t, KindError, events[1].Kind)
	assert.True(t, errors.Is(events[1].Err, ErrConnection))
	assert.Contains(t, events[1].Err.Error(), "rate_limit: slow down")
}

func TestRealtime_InvalidEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readClientEvents(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	}))
	defer server.Close()

	sess, err := NewRealtime(RealtimeConfig{APIKey: "k", URL: wsURL(server)}).Open(context.Background(), testRequest())
	require.NoError(t, err)
	defer sess.Close()

	events := collect(sess)
	require.Len(t, events, 1)
	assert.True(t, errors.Is(events[0].Err, ErrProtocol))
}

func TestRealtime_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	_, err := NewRealtime(RealtimeConfig{APIKey: "k", URL: url}).Open(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestRealtime_HandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewRealtime(RealtimeConfig{APIKey: "bad", URL: wsURL(server)}).Open(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
	assert.Contains(t, err.Error(), "status 401")
}

func TestRealtime_CloseEndsStream(t *testing.T) {
	ready := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readClientEvents(t, conn)
		close(ready)
		// Hold the turn open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := NewRealtime(RealtimeConfig{APIKey: "k", URL: wsURL(server)}).Open(ctx, testRequest())
	require.NoError(t, err)
	<-ready

	done := make(chan []Event)
	go func() {
		done <- collect(sess)
	}()

	cancel()

	select {
	case events := <-done:
		assert.Empty(t, events, "a closed session ends without an error event")
	case <-time.After(2 * time.Second):
		t.Fatal("Events did not return after the context was canceled")
	}
	assert.NoError(t, sess.Close())
}

func TestRealtime_CloseReleasesContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readClientEvents(t, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := NewRealtime(RealtimeConfig{APIKey: "k", URL: wsURL(server)}).Open(ctx, testRequest())
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	rs, ok := sess.(*realtimeSession)
	require.True(t, ok)
	// Close already unregistered the callback from ctx
	assert.False(t, rs.stopAfter())
}

func TestRealtime_AzureEndpoint(t *testing.T) {
	provider := NewRealtime(RealtimeConfig{
		Azure:      true,
		APIKey:     "azure-key",
		Endpoint:   "https://example.openai.azure.com/",
		Deployment: "gpt-4o-realtime",
	})
	assert.Equal(t, "azure", provider.Name())

	endpoint, err := provider.endpoint()
	require.NoError(t, err)

	u, err := url.Parse(endpoint)
	require.NoError(t, err)
	assert.Equal(t, "wss", u.Scheme)
	assert.Equal(t, "example.openai.azure.com", u.Host)
	assert.Equal(t, "/openai/realtime", u.Path)
	assert.Equal(t, DefaultAzureAPIVersion, u.Query().Get("api-version"))
	assert.Equal(t, "gpt-4o-realtime", u.Query().Get("deployment"))

	headers := provider.headers()
	assert.Equal(t, "azure-key", headers.Get("api-key"))
	assert.Empty(t, headers.Get("Authorization"))

	_, err = NewRealtime(RealtimeConfig{Azure: true}).endpoint()
	assert.Error(t, err)
}
