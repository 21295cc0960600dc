package typing

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/observability"
)

// State of a presentation
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Snapshot is what a surface renders. Revealed is always a prefix of FullText.
type Snapshot struct {
	FullText string
	Revealed string
	State    State
}

// Presenter reveals a complete reply word by word to emulate live generation.
// Only one presentation streams at a time.
type Presenter struct {
	maxDelay time.Duration
	onUpdate func(Snapshot)
	metrics  *observability.Metrics
	logger   zerolog.Logger

	mu          sync.Mutex
	state       State
	fullText    string
	revealed    string
	generation  uint64
	fastForward chan struct{}
}

// NewPresenter creates a presenter that waits up to maxDelay between tokens.
// onUpdate and metrics may be nil.
func NewPresenter(maxDelay time.Duration, onUpdate func(Snapshot), metrics *observability.Metrics) *Presenter {
	if maxDelay < 0 {
		maxDelay = 0
	}
	return &Presenter{
		maxDelay: maxDelay,
		onUpdate: onUpdate,
		metrics:  metrics,
		logger:   observability.ForComponent("typing"),
	}
}

// Present blocks until fullText is completely revealed, either naturally or
// because Cancel or ctx fast-forwarded it.
func (p *Presenter) Present(ctx context.Context, fullText string) error {
	p.mu.Lock()
	if p.state == StateStreaming {
		p.mu.Unlock()
		return fmt.Errorf("%w: presentation already streaming", domain.ErrInvalidState)
	}
	p.generation++
	gen := p.generation
	p.fullText = fullText
	p.revealed = ""
	p.state = StateStreaming
	fastForward := make(chan struct{})
	p.fastForward = fastForward
	p.mu.Unlock()

	p.emit()

	for _, end := range tokenEnds(fullText) {
		var delay time.Duration
		if p.maxDelay > 0 {
			delay = time.Duration(rand.Int63n(int64(p.maxDelay + 1)))
		}
		timer := time.NewTimer(delay)
		select {
		case <-fastForward:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			p.Cancel()
			return nil
		case <-timer.C:
		}

		if !p.reveal(gen, fullText[:end]) {
			return nil
		}
		p.emit()
	}

	p.finish(gen, false)
	return nil
}

// Cancel fast-forwards a streaming presentation to its full text.
// Returns false when nothing was streaming.
func (p *Presenter) Cancel() bool {
	p.mu.Lock()
	if p.state != StateStreaming {
		p.mu.Unlock()
		return false
	}
	gen := p.generation
	p.mu.Unlock()
	return p.finish(gen, true)
}

func (p *Presenter) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{FullText: p.fullText, Revealed: p.revealed, State: p.state}
}

func (p *Presenter) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Presenter) reveal(gen uint64, prefix string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation || p.state != StateStreaming {
		return false
	}
	p.revealed = prefix
	return true
}

func (p *Presenter) finish(gen uint64, fastForwarded bool) bool {
	p.mu.Lock()
	if gen != p.generation || p.state != StateStreaming {
		p.mu.Unlock()
		return false
	}
	p.revealed = p.fullText
	p.state = StateDone
	close(p.fastForward)
	chars := len(p.fullText)
	p.mu.Unlock()

	p.metrics.RecordPresentation(fastForwarded)
	p.logger.Debug().Bool("fast_forward", fastForwarded).Int("chars", chars).Msg("Presentation done")
	p.emit()
	return true
}

func (p *Presenter) emit() {
	if p.onUpdate != nil {
		p.onUpdate(p.Snapshot())
	}
}

// tokenEnds returns the byte offset just past each whitespace-delimited token
func tokenEnds(s string) []int {
	var ends []int
	inToken := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if inToken && space {
			ends = append(ends, i)
		}
		inToken = !space
	}
	if inToken {
		ends = append(ends, len(s))
	}
	return ends
}
