package attachment

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lexiqai/agent-console/internal/domain"
)

// State of an attachment in the input area
type State int

const (
	StateSelected State = iota
	StateUploading
	StateUploaded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateSelected:
		return "selected"
	case StateUploading:
		return "uploading"
	case StateUploaded:
		return "uploaded"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Entry is one attachment waiting to be sent with the next turn.
type Entry struct {
	ID   string
	File File

	mu       sync.Mutex
	state    State
	progress int
	message  string
}

// Snapshot is a point-in-time copy of an entry for rendering
type Snapshot struct {
	ID       string
	Name     string
	Size     int64
	MIMEType string
	State    State
	Progress int
	Message  string
}

// NewEntry validates f and returns a Selected entry, or a *ValidationError
func NewEntry(f File, policy Policy) (*Entry, error) {
	if verdict := policy.Validate(f); !verdict.Accepted {
		return nil, &ValidationError{File: f, Reason: verdict.Reason}
	}
	return &Entry{
		ID:    uuid.NewString(),
		File:  f,
		state: StateSelected,
	}, nil
}

func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Entry) Progress() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// Message is the human readable failure, empty unless Errored
func (e *Entry) Message() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.message
}

func (e *Entry) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		ID:       e.ID,
		Name:     e.File.Name,
		Size:     e.File.Size,
		MIMEType: e.File.MIMEType,
		State:    e.state,
		Progress: e.progress,
		Message:  e.message,
	}
}

// Reset returns an Errored entry to Selected with progress 0 so it can be
// uploaded again.
func (e *Entry) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateErrored {
		return fmt.Errorf("%w: only a failed upload of %s can be retried, entry is %s", domain.ErrInvalidState, e.File.Name, e.state)
	}
	e.state = StateSelected
	e.progress = 0
	e.message = ""
	return nil
}

func (e *Entry) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateSelected {
		return fmt.Errorf("%w: upload of %s requires selected, entry is %s", domain.ErrInvalidState, e.File.Name, e.state)
	}
	e.state = StateUploading
	e.progress = 0
	return nil
}

// advance moves progress forward; it never decreases and is capped at 100.
func (e *Entry) advance(percent int) bool {
	if percent > 100 {
		percent = 100
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateUploading || percent <= e.progress {
		return false
	}
	e.progress = percent
	return true
}

func (e *Entry) complete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateUploaded
	e.progress = 100
}

// fail keeps the last known progress for display
func (e *Entry) fail(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateErrored
	e.message = message
}
