package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	OpenAIRealtimeURL      = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel   = "gpt-4o-realtime-preview"
	DefaultAzureAPIVersion = "2024-10-01-preview"
	DefaultAudioFormat     = "pcm16"
)

// Client event types
const (
	eventSessionUpdate          = "session.update"
	eventConversationItemCreate = "conversation.item.create"
	eventResponseCreate         = "response.create"
)

// Server event types
const (
	eventError                       = "error"
	eventResponseAudioDelta          = "response.audio.delta"
	eventResponseOutputAudioDelta    = "response.output_audio.delta"
	eventResponseTextDelta           = "response.text.delta"
	eventResponseOutputTextDelta     = "response.output_text.delta"
	eventResponseAudioTranscript     = "response.audio_transcript.delta"
	eventResponseOutputTranscript    = "response.output_audio_transcript.delta"
	eventResponseFunctionCallArgDone = "response.function_call_arguments.done"
	eventResponseDone                = "response.done"
)

// RealtimeConfig configures the realtime websocket provider.
type RealtimeConfig struct {
	// Azure selects Azure OpenAI endpoint and header conventions.
	Azure bool

	APIKey string

	// URL overrides the websocket URL. For Azure, Endpoint is used instead
	// when URL is empty.
	URL        string
	Endpoint   string
	Deployment string
	APIVersion string
	Model      string

	InputAudioFormat  string
	OutputAudioFormat string

	HandshakeTimeout time.Duration
}

// Realtime opens one websocket per persona turn against an OpenAI
// Realtime compatible API.
type Realtime struct {
	config RealtimeConfig
	dialer *websocket.Dialer
}

// NewRealtime creates a realtime provider
func NewRealtime(config RealtimeConfig) *Realtime {
	if config.Model == "" {
		config.Model = DefaultRealtimeModel
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAzureAPIVersion
	}
	if config.InputAudioFormat == "" {
		config.InputAudioFormat = DefaultAudioFormat
	}
	if config.OutputAudioFormat == "" {
		config.OutputAudioFormat = DefaultAudioFormat
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 30 * time.Second
	}
	return &Realtime{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

// Name returns the provider name
func (r *Realtime) Name() string {
	if r.config.Azure {
		return "azure"
	}
	return "openai"
}

// endpoint builds the websocket URL.
func (r *Realtime) endpoint() (string, error) {
	if !r.config.Azure {
		base := r.config.URL
		if base == "" {
			base = OpenAIRealtimeURL
		}
		u, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("invalid realtime URL: %w", err)
		}
		q := u.Query()
		if q.Get("model") == "" {
			q.Set("model", r.config.Model)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	base := r.config.URL
	if base == "" {
		if r.config.Endpoint == "" {
			return "", fmt.Errorf("azure endpoint is required")
		}
		base = strings.TrimSuffix(r.config.Endpoint, "/") + "/openai/realtime"
	}
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid azure endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api-version", r.config.APIVersion)
	deployment := r.config.Deployment
	if deployment == "" {
		deployment = r.config.Model
	}
	q.Set("deployment", deployment)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Realtime) headers() http.Header {
	headers := http.Header{}
	if r.config.Azure {
		headers.Set("api-key", r.config.APIKey)
		return headers
	}
	headers.Set("Authorization", "Bearer "+r.config.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")
	return headers
}

// Open dials the API, configures the session for the persona, sends the
// turn input and requests a response.
func (r *Realtime) Open(ctx context.Context, req Request) (Session, error) {
	endpoint, err := r.endpoint()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	conn, resp, err := r.dialer.DialContext(ctx, endpoint, r.headers())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: failed to connect: status %d: %v", ErrConnection, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: failed to connect: %v", ErrConnection, err)
	}

	s := &realtimeSession{
		conn:    conn,
		persona: req.Persona.Name,
	}
	s.stopMu.Lock()
	s.stopAfter = context.AfterFunc(ctx, func() {
		_ = s.Close()
	})
	s.stopMu.Unlock()

	if err := s.start(r.config, req); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	log.Debug().
		Str("persona", req.Persona.Name).
		Str("provider", r.Name()).
		Bool("audio_input", len(req.Audio) > 0).
		Msg("Opened realtime session")
	return s, nil
}

type realtimeSession struct {
	conn      *websocket.Conn
	persona   string
	mu        sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	started   atomic.Bool
	// stopAfter releases the context registration that closes the socket.
	stopMu    sync.Mutex
	stopAfter func() bool
}

func generateEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

func (s *realtimeSession) start(config RealtimeConfig, req Request) error {
	p := req.Persona
	sessionConfig := map[string]any{
		"modalities":          []string{"text", "audio"},
		"instructions":        p.Instructions,
		"voice":               p.Voice,
		"input_audio_format":  config.InputAudioFormat,
		"output_audio_format": config.OutputAudioFormat,
		"turn_detection":      nil,
		"tools":               []Tool{SelectNextSpeakerTool(req.Participants)},
		"tool_choice":         "auto",
	}
	if p.Temperature > 0 {
		sessionConfig["temperature"] = p.Temperature
	}
	if p.MaxResponseTokens > 0 {
		sessionConfig["max_response_output_tokens"] = p.MaxResponseTokens
	}
	if err := s.send(map[string]any{
		"event_id": generateEventID(),
		"type":     eventSessionUpdate,
		"session":  sessionConfig,
	}); err != nil {
		return fmt.Errorf("failed to configure session: %w", err)
	}

	var content []map[string]any
	if req.Prompt != "" {
		content = append(content, map[string]any{"type": "input_text", "text": req.Prompt})
	}
	if len(req.Audio) > 0 {
		content = append(content, map[string]any{
			"type":  "input_audio",
			"audio": base64.StdEncoding.EncodeToString(req.Audio),
		})
	}
	if err := s.send(map[string]any{
		"event_id": generateEventID(),
		"type":     eventConversationItemCreate,
		"item": map[string]any{
			"type":    "message",
			"role":    "user",
			"content": content,
		},
	}); err != nil {
		return fmt.Errorf("failed to send turn input: %w", err)
	}

	if err := s.send(map[string]any{
		"event_id": generateEventID(),
		"type":     eventResponseCreate,
		"response": map[string]any{
			"modalities": []string{"text", "audio"},
		},
	}); err != nil {
		return fmt.Errorf("failed to request response: %w", err)
	}
	return nil
}

func (s *realtimeSession) send(event map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}

// serverEvent holds the fields of server events this adapter reads.
type serverEvent struct {
	Type      string `json:"type"`
	Delta     string `json:"delta"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Error     *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *realtimeSession) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !s.started.CompareAndSwap(false, true) {
			return
		}
		for {
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				if s.closed.Load() {
					return
				}
				yield(Failed(fmt.Errorf("%w: read error: %v", ErrConnection, err)))
				return
			}

			var ev serverEvent
			if err := json.Unmarshal(message, &ev); err != nil {
				yield(Failed(fmt.Errorf("%w: invalid server event: %v", ErrProtocol, err)))
				return
			}

			switch ev.Type {
			case eventResponseAudioDelta, eventResponseOutputAudioDelta:
				audio, err := base64.StdEncoding.DecodeString(ev.Delta)
				if err != nil {
					yield(Failed(fmt.Errorf("%w: invalid audio delta: %v", ErrProtocol, err)))
					return
				}
				if len(audio) == 0 {
					continue
				}
				if !yield(AudioChunk(audio)) {
					return
				}

			case eventResponseTextDelta, eventResponseOutputTextDelta,
				eventResponseAudioTranscript, eventResponseOutputTranscript:
				if ev.Delta == "" {
					continue
				}
				if !yield(TextDelta(ev.Delta)) {
					return
				}

			case eventResponseFunctionCallArgDone:
				log.Debug().Str("persona", s.persona).Str("function", ev.Name).Str("arguments", ev.Arguments).Msg("Function call completed")
				if !yield(Event{Kind: KindFunctionCall, Call: &FunctionCall{
					CallID:    ev.CallID,
					Name:      ev.Name,
					Arguments: ev.Arguments,
				}}) {
					return
				}

			case eventResponseDone:
				yield(TurnComplete())
				return

			case eventError:
				msg := "unknown error"
				if ev.Error != nil {
					msg = ev.Error.Message
					if ev.Error.Code != "" {
						msg = ev.Error.Code + ": " + msg
					}
				}
				yield(Failed(fmt.Errorf("%w: server error: %s", ErrConnection, msg)))
				return

			default:
				log.Debug().Str("persona", s.persona).Str("type", ev.Type).Msg("Ignored server event")
			}
		}
	}
}

func (s *realtimeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopMu.Lock()
		stop := s.stopAfter
		s.stopMu.Unlock()
		if stop != nil {
			stop()
		}
		s.closed.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
