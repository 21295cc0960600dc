package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/audio"
	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/observability"
	"github.com/lexiqai/agent-console/internal/stt"
)

// ErrClosed is returned by Start once the session has been closed.
var ErrClosed = errors.New("recording session closed")

// State of the recording session
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Config controls capture and transcription of one recording
type Config struct {
	Capture              audio.CaptureConfig
	ChunkSize            int
	Tick                 time.Duration
	TranscriptionTimeout time.Duration
	SilenceThreshold     float64
}

// ConfigFrom maps application config onto recording config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Capture: audio.CaptureConfig{
			SampleRate:  cfg.SampleRate,
			Channels:    cfg.Channels,
			InputFormat: cfg.AudioInputFormat,
			InputDevice: cfg.AudioInputDevice,
		},
		ChunkSize:            cfg.ChunkSize,
		Tick:                 time.Duration(cfg.RecordingTickMs) * time.Millisecond,
		TranscriptionTimeout: time.Duration(cfg.TranscriptionTimeout) * time.Second,
		SilenceThreshold:     cfg.SilenceThreshold,
	}
}

// Result of a finished recording
type Result struct {
	// Text may be empty; that is still a successful transcription.
	Text           string
	Confidence     float64
	Silent         bool
	ElapsedSeconds int
}

// Hooks observe the session. Both are optional and run outside the lock.
type Hooks struct {
	OnState func(State)
	OnTick  func(elapsedSeconds int)
}

// Session owns the microphone for one recording at a time and hands the
// finished capture to the transcription client.
type Session struct {
	capture     audio.Capture
	transcriber stt.Client
	cfg         Config
	hooks       Hooks
	metrics     *observability.Metrics
	logger      zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu               sync.Mutex
	state            State
	starting         bool
	closed           bool
	elapsed          int
	message          string
	current          *activeCapture
	cancelTranscribe context.CancelFunc
}

type activeCapture struct {
	stream      audio.Stream
	chunks      *audio.ChunkBuffer
	cancel      context.CancelFunc
	stopTick    chan struct{}
	tickDone    chan struct{}
	pumpDone    chan struct{}
	releaseOnce sync.Once
	pumpErr     error
}

// NewSession creates an idle session. metrics may be nil.
func NewSession(capture audio.Capture, transcriber stt.Client, cfg Config, hooks Hooks, metrics *observability.Metrics) *Session {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.TranscriptionTimeout <= 0 {
		cfg.TranscriptionTimeout = 30 * time.Second
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Session{
		capture:     capture,
		transcriber: transcriber,
		cfg:         cfg,
		hooks:       hooks,
		metrics:     metrics,
		logger:      observability.ForComponent("recording"),
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
	}
}

// Start opens the microphone and begins counting elapsed seconds.
// A session left Errored by a failed transcription may start again.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.starting || (s.state != StateIdle && s.state != StateErrored) {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start recording while %s", domain.ErrInvalidState, state)
	}
	s.starting = true
	s.mu.Unlock()

	captureCtx, cancel := context.WithCancel(s.baseCtx)
	stop := context.AfterFunc(ctx, cancel)
	stream, err := s.capture.Start(captureCtx, s.cfg.Capture)
	stop()
	if err != nil {
		cancel()
		s.mu.Lock()
		s.starting = false
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		s.state = StateIdle
		s.message = domain.MessagePermissionDenied
		s.mu.Unlock()

		s.metrics.RecordError(string(domain.KindPermissionDenied), "recording")
		s.logger.Warn().Err(err).Msg("Microphone capture unavailable")
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	}

	active := &activeCapture{
		stream:   stream,
		chunks:   audio.NewChunkBuffer(),
		cancel:   cancel,
		stopTick: make(chan struct{}),
		tickDone: make(chan struct{}),
		pumpDone: make(chan struct{}),
	}

	s.mu.Lock()
	s.starting = false
	if s.closed {
		s.mu.Unlock()
		if err := stream.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Microphone did not stop cleanly")
		}
		cancel()
		s.logger.Info().Msg("Session closed while the microphone was opening")
		return ErrClosed
	}
	s.current = active
	s.state = StateRecording
	s.elapsed = 0
	s.message = ""
	s.mu.Unlock()

	go s.pump(active)
	go s.tick(active)

	s.metrics.RecordRecordingStart()
	s.logger.Info().Msg("Recording started")
	s.emitState(StateRecording)
	return nil
}

func (s *Session) pump(active *activeCapture) {
	defer close(active.pumpDone)

	buf := make([]byte, s.cfg.ChunkSize)
	for {
		n, err := active.stream.Read(buf)
		if n > 0 && active.chunks.Append(buf[:n]) {
			s.metrics.RecordAudioBytes(int64(n))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				active.pumpErr = err
			}
			return
		}
	}
}

func (s *Session) tick(active *activeCapture) {
	defer close(active.tickDone)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-active.stopTick:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.current != active || s.state != StateRecording {
			s.mu.Unlock()
			return
		}
		s.elapsed++
		elapsed := s.elapsed
		s.mu.Unlock()

		if s.hooks.OnTick != nil {
			s.hooks.OnTick(elapsed)
		}
	}
}

// release stops the tick and the microphone and waits for the pump to drain.
func (s *Session) release(active *activeCapture) error {
	var stopErr error
	active.releaseOnce.Do(func() {
		close(active.stopTick)
		<-active.tickDone
		stopErr = active.stream.Stop()
		<-active.pumpDone
		active.chunks.Seal()
		active.cancel()
	})
	return stopErr
}

// Stop ends capture and blocks until the recording is transcribed.
// The session always passes through Transcribing, then lands in Idle on
// success or Errored on failure.
func (s *Session) Stop(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot stop recording while %s", domain.ErrInvalidState, state)
	}
	s.state = StateTranscribing
	active := s.current
	elapsed := s.elapsed
	transcribeCtx, cancel := context.WithTimeout(s.baseCtx, s.cfg.TranscriptionTimeout)
	s.cancelTranscribe = cancel
	s.mu.Unlock()
	defer cancel()
	stopOnCaller := context.AfterFunc(ctx, cancel)
	defer stopOnCaller()

	s.emitState(StateTranscribing)

	if err := s.release(active); err != nil {
		s.logger.Warn().Err(err).Msg("Microphone did not stop cleanly")
	}
	if active.pumpErr != nil {
		s.logger.Warn().Err(active.pumpErr).Msg("Audio capture error")
	}

	pcm := active.chunks.Assemble()
	pcm = pcm[:len(pcm)&^1]

	analysis, err := audio.Analyze(pcm, &audio.VADConfig{
		EnergyThreshold: s.cfg.SilenceThreshold,
		SilenceFrames:   10,
		FrameSize:       max(s.cfg.Capture.SampleRate/50, 1),
	})
	if err != nil {
		s.logger.Debug().Err(err).Msg("Skipping silence analysis")
	}

	wav, sampleRate, err := audio.PrepareForTranscription(pcm, s.sampleRate(), s.channels())
	if err != nil {
		return nil, s.fail(active, elapsed, fmt.Errorf("failed to assemble recording: %w", err))
	}

	payload := stt.Payload{
		Audio:           wav,
		MIMEType:        "audio/wav",
		Filename:        "recording.wav",
		SampleRate:      sampleRate,
		DurationSeconds: audio.DurationSeconds(len(pcm), s.sampleRate(), s.channels()),
	}

	s.metrics.RecordTranscriptionStart()
	result, err := s.transcriber.Transcribe(transcribeCtx, payload)
	s.metrics.RecordTranscriptionEnd(err == nil)
	if err != nil {
		return nil, s.fail(active, elapsed, err)
	}

	s.mu.Lock()
	s.state = StateIdle
	s.current = nil
	s.cancelTranscribe = nil
	s.mu.Unlock()
	active.chunks.Clear()

	s.metrics.RecordRecordingEnd("transcribed", elapsed)
	event := s.logger.Info().Int("elapsed_seconds", elapsed).Int("chars", len(result.Text)).Float64("peak_rms", analysis.PeakRMS)
	if analysis.Silent() {
		event = event.Bool("silent", true)
	}
	event.Msg("Recording transcribed")
	s.emitState(StateIdle)

	return &Result{
		Text:           result.Text,
		Confidence:     result.Confidence,
		Silent:         analysis.Silent(),
		ElapsedSeconds: elapsed,
	}, nil
}

func (s *Session) fail(active *activeCapture, elapsed int, err error) error {
	message := domain.MessageTranscriptionFailed
	if errors.Is(err, domain.ErrConfigurationMissing) {
		message = domain.MessageConfigurationMissing
	}

	s.mu.Lock()
	s.state = StateErrored
	s.current = nil
	s.cancelTranscribe = nil
	s.message = message
	s.mu.Unlock()
	active.chunks.Clear()

	s.metrics.RecordRecordingEnd("failed", elapsed)
	s.metrics.RecordError(string(domain.Kind(err)), "recording")
	s.logger.Warn().Err(err).Int("elapsed_seconds", elapsed).Msg("Transcription failed")
	s.emitState(StateErrored)
	return fmt.Errorf("transcription failed: %w", err)
}

// Abort discards a live recording without transcribing it, or cancels a
// transcription in flight (the pending Stop then fails).
func (s *Session) Abort() {
	s.mu.Lock()
	switch s.state {
	case StateRecording:
		active := s.current
		s.state = StateIdle
		s.current = nil
		elapsed := s.elapsed
		s.mu.Unlock()

		_ = s.release(active)
		active.chunks.Clear()
		s.metrics.RecordRecordingEnd("discarded", elapsed)
		s.logger.Info().Msg("Recording discarded")
		s.emitState(StateIdle)
	case StateTranscribing:
		cancel := s.cancelTranscribe
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	default:
		s.mu.Unlock()
	}
}

// Close releases the microphone and cancels any pending transcription.
// A Start still waiting on the microphone gives the handle back and fails
// with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Abort()
	s.baseCancel()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the session is Recording or Transcribing
func (s *Session) Active() bool {
	state := s.State()
	return state == StateRecording || state == StateTranscribing
}

// Elapsed is the number of whole seconds counted by the current or last recording
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Message is the human readable outcome of the last failed attempt
func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// holdsCapture reports whether a microphone handle is owned
func (s *Session) holdsCapture() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *Session) sampleRate() int {
	if s.cfg.Capture.SampleRate > 0 {
		return s.cfg.Capture.SampleRate
	}
	return 16000
}

func (s *Session) channels() int {
	if s.cfg.Capture.Channels > 0 {
		return s.cfg.Capture.Channels
	}
	return 1
}

func (s *Session) emitState(state State) {
	if s.hooks.OnState != nil {
		s.hooks.OnState(state)
	}
}
