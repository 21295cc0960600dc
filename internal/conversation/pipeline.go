package conversation

import (
	"context"

	"github.com/lexiqai/agent-console/internal/attachment"
	"github.com/lexiqai/agent-console/internal/recording"
)

// Pipeline is the turn pipeline as consumed by a chat surface
type Pipeline interface {
	State() State
	Snapshot() Snapshot

	SetInput(text string)
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (string, error)

	Attach(ctx context.Context, f attachment.File) (*attachment.Entry, error)
	RemoveAttachment(id string) error
	RetryAttachment(id string) error

	Submit(ctx context.Context, s Submission) error
	SubmitDraft(ctx context.Context) error
	Announce(ctx context.Context, text string) error

	ToggleSpeech() bool
	Clear()
	Close() error
}

// Recorder is the microphone session the coordinator drives
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*recording.Result, error)
	State() recording.State
	Active() bool
	Elapsed() int
	Message() string
	Close()
}

// Presenter reveals a reply incrementally
type Presenter interface {
	Present(ctx context.Context, fullText string) error
	Cancel() bool
}

// Speaker reads replies aloud
type Speaker interface {
	Speak(text string, originatedFromVoice bool) bool
	Stop()
	ToggleEnabled() bool
	Enabled() bool
	Close()
}

// Uploader moves an attachment from Selected to Uploaded or Errored
type Uploader interface {
	Upload(ctx context.Context, e *attachment.Entry, onProgress func(attachment.Snapshot)) error
}

// Snapshot is a point-in-time view of the whole pipeline
type Snapshot struct {
	State            State
	Input            string
	InputFromVoice   bool
	Attachments      []attachment.Snapshot
	Turns            []Turn
	Recording        recording.State
	RecordingElapsed int // seconds counted by the current or last recording
	SpeechEnabled    bool
}
