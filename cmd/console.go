package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/daikw/modcast/internal/hook"
	"github.com/daikw/modcast/internal/orchestrator"
	"github.com/daikw/modcast/internal/voice"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

var speakerPalette = []color.Attribute{
	color.FgCyan,
	color.FgMagenta,
	color.FgYellow,
	color.FgGreen,
	color.FgBlue,
}

// console prints conversation events with one color per speaker.
type console struct {
	out    io.Writer
	human  string
	colors map[string]*color.Color
	faint  *color.Color
	failed *color.Color
}

func newConsole(out io.Writer, personas []string, human string) *console {
	colors := make(map[string]*color.Color, len(personas)+1)
	for i, name := range personas {
		colors[name] = color.New(speakerPalette[i%len(speakerPalette)], color.Bold)
	}
	colors[human] = color.New(color.FgHiWhite, color.Bold)

	return &console{
		out:    out,
		human:  human,
		colors: colors,
		faint:  color.New(color.Faint),
		failed: color.New(color.FgRed),
	}
}

func (c *console) speaker(name string) string {
	if col, ok := c.colors[name]; ok {
		return col.Sprint(name)
	}
	return name
}

func (c *console) handle(e hook.Event) error {
	switch e.Kind {
	case hook.TurnStarted:
		fmt.Fprintf(c.out, "\n%s %s\n", c.faint.Sprintf("[turn %d]", e.Turn), c.speaker(e.Speaker))
	case hook.TurnFinished:
		if text := strings.TrimSpace(e.Text); text != "" {
			fmt.Fprintf(c.out, "  %s\n", text)
		}
		fmt.Fprintln(c.out, c.faint.Sprintf("  (%d chunks, %.1fs of audio left to play)", e.Chunks, e.Wait.Seconds()))
	case hook.TurnFailed:
		fmt.Fprintln(c.out, c.failed.Sprintf("  ✗ %s failed (%s): %s", e.Speaker, e.ErrKind, e.Message))
	case hook.SpeakerChanged:
		fmt.Fprintf(c.out, "  %s %s %s\n", c.faint.Sprint("→"), c.speaker(e.To), c.faint.Sprintf("(%s)", e.Reason))
	case hook.HumanTurnStarted:
		fmt.Fprintf(c.out, "\n%s %s\n", c.faint.Sprintf("[turn %d]", e.Turn), c.speaker(e.Speaker))
	case hook.HumanTurnEnded:
		if e.Reason == hook.ReasonTimeout {
			fmt.Fprintln(c.out, c.faint.Sprint("  (no answer)"))
		} else {
			fmt.Fprintln(c.out, c.faint.Sprintf("  (%d bytes of audio)", e.Bytes))
		}
	case hook.ConversationComplete:
		fmt.Fprintf(c.out, "\n🎬 Conversation complete after %d turns (%s)\n", e.Turn, e.Reason)
	}
	return nil
}

// turnAudio buffers each persona turn's chunks and writes them out as a
// WAV file when the turn finishes.
type turnAudio struct {
	dir     string
	mu      sync.Mutex
	buffers map[int]*bytes.Buffer
}

func newTurnAudio(dir string) *turnAudio {
	return &turnAudio{dir: dir, buffers: make(map[int]*bytes.Buffer)}
}

func (t *turnAudio) handle(e hook.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Kind {
	case hook.AudioChunk:
		buf, ok := t.buffers[e.Turn]
		if !ok {
			buf = &bytes.Buffer{}
			t.buffers[e.Turn] = buf
		}
		buf.Write(e.Audio)
	case hook.TurnFinished:
		buf, ok := t.buffers[e.Turn]
		if !ok {
			return nil
		}
		delete(t.buffers, e.Turn)
		path, err := voice.SaveTurnAudio(t.dir, e.Speaker, e.Turn, buf.Bytes())
		if err != nil {
			return err
		}
		log.Debug().Str("path", path).Str("persona", e.Speaker).Msg("Wrote turn audio")
	}
	return nil
}

// humanInput asks on the terminal for an audio file whenever the human is
// given the floor, and submits it to the orchestrator.
type humanInput struct {
	orch  *orchestrator.Orchestrator
	out   io.Writer
	lines chan string

	mu   sync.Mutex
	done chan struct{}
}

func newHumanInput(in io.Reader, out io.Writer, orch *orchestrator.Orchestrator) *humanInput {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return &humanInput{orch: orch, out: out, lines: lines}
}

func (h *humanInput) handle(e hook.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e.Kind {
	case hook.HumanTurnStarted:
		h.done = make(chan struct{})
		fmt.Fprintf(h.out, "  Your turn. Enter a WAV or raw PCM16 (24kHz mono) file within %s, or press enter to pass: ", e.Timeout)
		go h.await(h.done)
	case hook.HumanTurnEnded, hook.ConversationComplete:
		if h.done != nil {
			close(h.done)
			h.done = nil
		}
	}
	return nil
}

func (h *humanInput) await(done <-chan struct{}) {
	for {
		var line string
		select {
		case <-done:
			return
		case l, ok := <-h.lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			fmt.Fprintln(h.out, "  Passing, the floor returns when the timeout elapses")
			return
		}

		audio, err := voice.ReadPCM(line)
		if err != nil {
			fmt.Fprintf(h.out, "  %v, try again: ", err)
			continue
		}
		if err := h.orch.SubmitHumanAudio(audio); err != nil {
			log.Warn().Err(err).Msg("Human audio was not accepted")
		}
		return
	}
}
