package conversation

import (
	"github.com/lexiqai/agent-console/internal/attachment"
	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/recording"
	"github.com/lexiqai/agent-console/internal/tts"
	"github.com/lexiqai/agent-console/internal/typing"
)

// Events receives every change a chat surface renders. Calls may arrive
// from any goroutine and must not block.
type Events interface {
	TurnState(State)
	TurnAppended(Turn)
	InputChanged(text string, fromVoice bool)
	RecordingState(recording.State)
	RecordingTick(elapsedSeconds int)
	Reveal(typing.Snapshot)
	Upload(attachment.Snapshot)
	SpeechState(tts.State)
	Notice(level domain.NoticeLevel, message string)
	Cleared()
}

// NopEvents ignores everything. Embed it to implement a subset.
type NopEvents struct{}

func (NopEvents) TurnState(State)                   {}
func (NopEvents) TurnAppended(Turn)                 {}
func (NopEvents) InputChanged(string, bool)         {}
func (NopEvents) RecordingState(recording.State)    {}
func (NopEvents) RecordingTick(int)                 {}
func (NopEvents) Reveal(typing.Snapshot)            {}
func (NopEvents) Upload(attachment.Snapshot)        {}
func (NopEvents) SpeechState(tts.State)             {}
func (NopEvents) Notice(domain.NoticeLevel, string) {}
func (NopEvents) Cleared()                          {}
