package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lexiqai/agent-console/internal/attachment"
	"github.com/lexiqai/agent-console/internal/conversation"
	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/recording"
	"github.com/lexiqai/agent-console/internal/tts"
	"github.com/lexiqai/agent-console/internal/typing"
)

// terminalEvents renders pipeline changes as plain terminal lines
type terminalEvents struct {
	conversation.NopEvents

	mu       sync.Mutex
	out      io.Writer
	printed  int
	lastDone string
	uploads  map[string]attachment.State
}

func newTerminalEvents(out io.Writer) *terminalEvents {
	return &terminalEvents{out: out, uploads: make(map[string]attachment.State)}
}

func (e *terminalEvents) Reveal(s typing.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.printed == 0 && s.Revealed != "" {
		fmt.Fprint(e.out, "agent: ")
	}
	if len(s.Revealed) > e.printed {
		fmt.Fprint(e.out, s.Revealed[e.printed:])
		e.printed = len(s.Revealed)
	}
	if s.State == typing.StateDone {
		if e.printed > 0 {
			fmt.Fprintln(e.out)
		}
		e.printed = 0
		e.lastDone = s.FullText
	}
}

func (e *terminalEvents) TurnAppended(t conversation.Turn) {
	if t.Sender != domain.SenderAgent {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// Presented turns were already printed by Reveal.
	if t.Content == e.lastDone {
		e.lastDone = ""
		return
	}
	fmt.Fprintf(e.out, "agent: %s\n", t.Content)
}

func (e *terminalEvents) InputChanged(text string, fromVoice bool) {
	if !fromVoice {
		return
	}
	e.printf("input (voice): %s\n", text)
}

func (e *terminalEvents) RecordingState(s recording.State) {
	if s == recording.StateTranscribing {
		e.printf("\nTranscribing...\n")
	}
}

func (e *terminalEvents) RecordingTick(elapsed int) {
	e.printf("\r● recording %ds", elapsed)
}

func (e *terminalEvents) Upload(s attachment.Snapshot) {
	e.mu.Lock()
	previous, seen := e.uploads[s.ID]
	e.uploads[s.ID] = s.State
	e.mu.Unlock()

	if seen && previous == s.State {
		return
	}
	switch s.State {
	case attachment.StateUploading:
		e.printf("uploading %s\n", s.Name)
	case attachment.StateUploaded:
		e.printf("uploaded %s\n", s.Name)
	case attachment.StateErrored:
		e.printf("upload of %s stopped at %d%%\n", s.Name, s.Progress)
	}
}

func (e *terminalEvents) SpeechState(s tts.State) {
	if s == tts.StateSpeaking {
		e.printf("(speaking)\n")
	}
}

func (e *terminalEvents) Notice(level domain.NoticeLevel, message string) {
	if message == "" {
		return
	}
	e.printf("[%s] %s\n", strings.ToUpper(string(level)), message)
}

func (e *terminalEvents) Cleared() {
	e.printf("Conversation cleared.\n")
}

func (e *terminalEvents) printf(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.out, format, args...)
}
