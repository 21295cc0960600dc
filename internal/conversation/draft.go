package conversation

import (
	"slices"

	"github.com/lexiqai/agent-console/internal/attachment"
)

// Submission is one pending send. OriginatedFromVoice travels with the
// value instead of living in shared state.
type Submission struct {
	Text                string
	Attachments         []*attachment.Entry
	OriginatedFromVoice bool
}

// Empty reports whether there is nothing to send
func (s Submission) Empty() bool {
	return s.Text == "" && len(s.Attachments) == 0
}

// Draft is the composer: the input text, where it came from, and the
// attachments picked so far. It is not safe for concurrent use; the
// coordinator guards it.
type Draft struct {
	text        string
	fromVoice   bool
	attachments []*attachment.Entry
}

// Edit replaces the text as a manual edit, clearing the voice flag
func (d *Draft) Edit(text string) {
	d.text = text
	d.fromVoice = false
}

// Transcribed fills the input from a completed transcription
func (d *Draft) Transcribed(text string) {
	d.text = text
	d.fromVoice = true
}

func (d *Draft) Text() string { return d.text }

func (d *Draft) FromVoice() bool { return d.fromVoice }

func (d *Draft) Add(e *attachment.Entry) {
	d.attachments = append(d.attachments, e)
}

// Remove drops the attachment with id and returns it
func (d *Draft) Remove(id string) *attachment.Entry {
	i := slices.IndexFunc(d.attachments, func(e *attachment.Entry) bool { return e.ID == id })
	if i < 0 {
		return nil
	}
	e := d.attachments[i]
	d.attachments = slices.Delete(d.attachments, i, i+1)
	return e
}

// Find returns the attachment with id, or nil
func (d *Draft) Find(id string) *attachment.Entry {
	i := slices.IndexFunc(d.attachments, func(e *attachment.Entry) bool { return e.ID == id })
	if i < 0 {
		return nil
	}
	return d.attachments[i]
}

func (d *Draft) Attachments() []*attachment.Entry {
	return slices.Clone(d.attachments)
}

// Reset empties the composer
func (d *Draft) Reset() {
	*d = Draft{}
}
