package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexiqai/agent-console/internal/attachment"
	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/orchestrator"
)

// Turn is one user or agent contribution. Turns are never mutated after
// they are appended.
type Turn struct {
	ID                  string
	Sender              domain.Sender
	Content             string
	Attachments         []attachment.Snapshot
	Timestamp           time.Time
	OriginatedFromVoice bool

	// Agent annotations, empty for user turns
	ReasoningSteps []orchestrator.ReasoningStep
	SubAgentCalls  []orchestrator.SubAgentCall
}

func newTurn(sender domain.Sender, content string, fromVoice bool) Turn {
	return Turn{
		ID:                  uuid.NewString(),
		Sender:              sender,
		Content:             content,
		Timestamp:           time.Now(),
		OriginatedFromVoice: fromVoice,
	}
}

// Log is the ordered, append-only conversation history. Only the log as a
// whole may be cleared; each Clear starts a new epoch.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
	epoch uint64
}

func NewLog() *Log {
	return &Log{}
}

// Append adds t and returns the epoch it was appended in
func (l *Log) Append(t Turn) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, t)
	return l.epoch
}

// AppendIn adds t only if the log has not been cleared since epoch.
func (l *Log) AppendIn(epoch uint64, t Turn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.epoch != epoch {
		return false
	}
	l.turns = append(l.turns, t)
	return true
}

// Turns returns a copy of the history
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Turn(nil), l.turns...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

func (l *Log) Epoch() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.epoch
}

// Clear drops every turn and advances the epoch
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
	l.epoch++
}

// History renders the first n turns in the agent's request format
func (l *Log) History(n int) []orchestrator.HistoryTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n = min(n, len(l.turns))
	history := make([]orchestrator.HistoryTurn, 0, n)
	for _, t := range l.turns[:n] {
		role := "user"
		if t.Sender == domain.SenderAgent {
			role = "assistant"
		}
		history = append(history, orchestrator.HistoryTurn{Role: role, Content: t.Content})
	}
	return history
}
