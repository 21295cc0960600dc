package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lexiqai/agent-console/internal/attachment"
	"github.com/lexiqai/agent-console/internal/conversation"
	"github.com/lexiqai/agent-console/internal/domain"
)

const helpText = `Commands:
  <text>          send a message
  <enter>         send the transcribed input
  /record         start recording
  /stop           stop recording and transcribe
  /attach <path>  attach a PDF, DOC, DOCX or TXT file
  /remove <id>    remove an attachment
  /retry <id>     retry a failed upload
  /tts            toggle spoken replies
  /clear          clear the conversation
  /status         show pipeline state
  /quit           exit`

type repl struct {
	p   conversation.Pipeline
	out io.Writer
}

func newREPL(p conversation.Pipeline, out io.Writer) *repl {
	return &repl{p: p, out: out}
}

// run reads commands until /quit, EOF or ctx is done
func (r *repl) run(ctx context.Context, in io.Reader) int {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	fmt.Fprintln(r.out, "Type /help for commands.")
	for {
		select {
		case <-ctx.Done():
			return 0
		case line, ok := <-lines:
			if !ok {
				return 0
			}
			if quit := r.handle(ctx, line); quit {
				return 0
			}
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/record":
		if err := r.p.StartRecording(ctx); err == nil {
			fmt.Fprintln(r.out, "Recording... /stop when done.")
		} else if errors.Is(err, domain.ErrInvalidState) {
			fmt.Fprintln(r.out, "Cannot record right now.")
		}
	case "/stop":
		text, err := r.p.StopRecording(ctx)
		switch {
		case errors.Is(err, domain.ErrInvalidState):
			fmt.Fprintln(r.out, "Not recording.")
		case err == nil && text != "":
			fmt.Fprintln(r.out, "Press enter to send, or type a replacement.")
		}
	case "/attach":
		r.attach(ctx, arg)
	case "/remove":
		if err := r.p.RemoveAttachment(arg); err != nil {
			fmt.Fprintf(r.out, "No attachment %q.\n", arg)
		}
	case "/retry":
		if err := r.p.RetryAttachment(arg); err != nil {
			fmt.Fprintf(r.out, "Cannot retry %q.\n", arg)
		}
	case "/tts":
		r.p.ToggleSpeech()
	case "/clear":
		r.p.Clear()
	case "/status":
		r.status()
	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help.\n", command)
	}
	return false
}

func (r *repl) send(ctx context.Context, line string) {
	if line != "" {
		r.p.SetInput(line)
	}
	snap := r.p.Snapshot()
	if snap.Input == "" && len(snap.Attachments) == 0 {
		return
	}
	if err := r.p.SubmitDraft(ctx); err != nil {
		fmt.Fprintln(r.out, "Cannot send right now.")
	}
}

func (r *repl) attach(ctx context.Context, path string) {
	if path == "" {
		fmt.Fprintln(r.out, "Usage: /attach <path>")
		return
	}
	f, err := attachment.FileFromPath(path)
	if err != nil {
		fmt.Fprintf(r.out, "Cannot read %s: %v\n", path, err)
		return
	}
	entry, err := r.p.Attach(ctx, f)
	if err != nil {
		return
	}
	fmt.Fprintf(r.out, "Attached %s [%s]\n", f.Name, entry.ID)
}

func (r *repl) status() {
	snap := r.p.Snapshot()
	fmt.Fprintf(r.out, "turn: %s  recording: %s (%ds)  speech: %v  turns: %d\n",
		snap.State, snap.Recording, snap.RecordingElapsed, snap.SpeechEnabled, len(snap.Turns))
	if snap.Input != "" {
		origin := "typed"
		if snap.InputFromVoice {
			origin = "voice"
		}
		fmt.Fprintf(r.out, "input (%s): %s\n", origin, snap.Input)
	}
	for _, a := range snap.Attachments {
		fmt.Fprintf(r.out, "  %s %s %s %d%%\n", a.ID, a.Name, a.State, a.Progress)
	}
}
