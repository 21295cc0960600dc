package tts

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/observability"
)

// Player speaks finished agent replies for voice-originated turns.
// At most one utterance plays at a time; a new one cancels the previous.
type Player struct {
	engine      Engine
	preferredID string
	metrics     *observability.Metrics
	onState     func(State)
	logger      zerolog.Logger

	mu          sync.Mutex
	state       State
	enabled     bool
	voice       *Voice
	waitingList bool
	utterance   uint64
	cancel      context.CancelFunc
	done        chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewPlayer creates a player. onState and metrics may be nil.
func NewPlayer(engine Engine, enabled bool, preferredVoiceID string, metrics *observability.Metrics, onState func(State)) *Player {
	return &Player{
		engine:      engine,
		preferredID: preferredVoiceID,
		metrics:     metrics,
		onState:     onState,
		logger:      observability.ForComponent("tts"),
		enabled:     enabled,
		closed:      make(chan struct{}),
	}
}

// InitializeVoice resolves the synthesis voice. Once a voice is resolved it
// never changes. If the engine has not loaded its voices yet, resolution is
// retried when they become ready.
func (p *Player) InitializeVoice() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.voice != nil {
		return
	}

	voices := p.engine.Voices()
	if len(voices) == 0 {
		if p.waitingList {
			return
		}
		select {
		case <-p.engine.VoicesReady():
			// Loaded and empty: no voice, speech stays a no-op.
			return
		default:
		}
		p.waitingList = true
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			select {
			case <-p.engine.VoicesReady():
				p.mu.Lock()
				p.waitingList = false
				p.mu.Unlock()
				p.InitializeVoice()
			case <-p.closed:
			}
		}()
		return
	}

	p.voice = SelectVoice(voices, p.preferredID)
	if p.voice == nil {
		p.logger.Warn().Int("voices", len(voices)).Msg("No English synthesis voice available")
		return
	}
	p.logger.Info().Str("voice_id", p.voice.ID).Str("voice", p.voice.Name).Msg("Synthesis voice selected")
}

// Speak starts speaking text and reports whether it did. It is a no-op
// unless speech is enabled, a voice is resolved and the turn came from voice.
func (p *Player) Speak(text string, originatedFromVoice bool) bool {
	if !originatedFromVoice {
		return false
	}
	cleaned := CleanForSpeech(text)

	p.mu.Lock()
	if !p.enabled || p.voice == nil || cleaned == "" {
		p.mu.Unlock()
		return false
	}
	select {
	case <-p.closed:
		p.mu.Unlock()
		return false
	default:
	}

	p.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	p.utterance++
	id := p.utterance
	voice := *p.voice
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.state = StateSpeaking
	p.wg.Add(1)
	p.mu.Unlock()

	p.emit(StateSpeaking)
	go p.run(ctx, id, voice, cleaned, done)
	return true
}

func (p *Player) run(ctx context.Context, id uint64, voice Voice, text string, done chan struct{}) {
	defer p.wg.Done()
	defer close(done)

	err := p.engine.Speak(ctx, voice, text)
	switch {
	case err == nil:
		p.metrics.RecordUtterance("completed")
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		p.metrics.RecordUtterance("cancelled")
	default:
		p.metrics.RecordUtterance("error")
		p.logger.Warn().Err(err).Str("voice_id", voice.ID).Msg("Speech synthesis failed")
	}

	p.mu.Lock()
	current := p.utterance == id && p.state == StateSpeaking
	if current {
		p.state = StateIdle
		p.cancel = nil
	}
	p.mu.Unlock()
	if current {
		p.emit(StateIdle)
	}
}

// Stop cancels any utterance and returns to Idle
func (p *Player) Stop() {
	p.mu.Lock()
	wasSpeaking := p.stopLocked()
	p.mu.Unlock()
	if wasSpeaking {
		p.emit(StateIdle)
	}
}

func (p *Player) stopLocked() bool {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.utterance++
	wasSpeaking := p.state == StateSpeaking
	p.state = StateIdle
	return wasSpeaking
}

// ToggleEnabled flips speech output and returns the new setting.
// Disabling stops any utterance immediately.
func (p *Player) ToggleEnabled() bool {
	p.mu.Lock()
	p.enabled = !p.enabled
	enabled := p.enabled
	wasSpeaking := false
	if !enabled {
		wasSpeaking = p.stopLocked()
	}
	p.mu.Unlock()

	if wasSpeaking {
		p.emit(StateIdle)
	}
	p.logger.Info().Bool("enabled", enabled).Msg("Speech output toggled")
	return enabled
}

// wait blocks until the most recent utterance has finished
func (p *Player) wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops speech and releases the voice-list watcher
func (p *Player) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
	p.Stop()
	p.wg.Wait()
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Voice returns the resolved voice, or nil while none is available
func (p *Player) Voice() *Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.voice == nil {
		return nil
	}
	v := *p.voice
	return &v
}

func (p *Player) emit(state State) {
	if p.onState != nil {
		p.onState(state)
	}
}
