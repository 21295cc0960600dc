package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/agent-console/internal/attachment"
	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/observability"
	"github.com/lexiqai/agent-console/internal/orchestrator"
	"github.com/lexiqai/agent-console/internal/recording"
)

// ErrUnknownAttachment is returned for an id that is not in the composer
var ErrUnknownAttachment = errors.New("unknown attachment")

// State of the current turn
type State int

const (
	StateComposing State = iota
	StateSending
	StateAwaitingReply
	StatePresenting
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateComposing:
		return "composing"
	case StateSending:
		return "sending"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StatePresenting:
		return "presenting"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Dependencies are the collaborators a Coordinator drives. Events and
// Metrics may be nil.
type Dependencies struct {
	Recorder  Recorder
	Responder orchestrator.Responder
	Presenter Presenter
	Speaker   Speaker
	Uploader  Uploader
	Policy    attachment.Policy
	Events    Events
	Metrics   *observability.Metrics
}

// Options parameterise the agent requests
type Options struct {
	ConversationID string
	AgentID        string
	Tools          []string
	AgentTimeout   time.Duration
}

type uploadHandle struct {
	cancel context.CancelFunc
}

// Coordinator ties recording, attachments, the agent call, typing and
// speech into one conversational turn at a time.
type Coordinator struct {
	recorder  Recorder
	responder orchestrator.Responder
	presenter Presenter
	speaker   Speaker
	uploader  Uploader
	policy    attachment.Policy
	events    Events
	metrics   *observability.Metrics
	logger    zerolog.Logger
	opts      Options

	log *Log

	ctx     context.Context
	cancel  context.CancelFunc
	uploads errgroup.Group

	// Held from the start of a presentation until its turn is appended.
	presentMu sync.Mutex

	// Orders appended turns and the speech they start against Clear.
	clearMu sync.Mutex

	mu             sync.Mutex
	state          State
	draft          Draft
	recordStarting bool
	inflight       map[string]*uploadHandle
	turnCancel     context.CancelFunc
	closed         bool
}

// NewCoordinator creates a coordinator in Composing
func NewCoordinator(deps Dependencies, opts Options) *Coordinator {
	if deps.Events == nil {
		deps.Events = NopEvents{}
	}
	if opts.ConversationID == "" {
		opts.ConversationID = observability.NewSessionID()
	}
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		recorder:  deps.Recorder,
		responder: deps.Responder,
		presenter: deps.Presenter,
		speaker:   deps.Speaker,
		uploader:  deps.Uploader,
		policy:    deps.Policy,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    observability.WithSession(opts.ConversationID).With().Str("component", "conversation").Logger(),
		opts:      opts,
		log:       NewLog(),
		ctx:       ctx,
		cancel:    cancel,
		inflight:  make(map[string]*uploadHandle),
	}
}

var _ Pipeline = (*Coordinator)(nil)

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Log exposes the conversation history
func (c *Coordinator) Log() *Log {
	return c.log
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:          c.state,
		Input:          c.draft.Text(),
		InputFromVoice: c.draft.FromVoice(),
	}
	entries := c.draft.Attachments()
	c.mu.Unlock()

	for _, e := range entries {
		snap.Attachments = append(snap.Attachments, e.Snapshot())
	}
	snap.Turns = c.log.Turns()
	snap.Recording = c.recorder.State()
	snap.RecordingElapsed = c.recorder.Elapsed()
	snap.SpeechEnabled = c.speaker.Enabled()
	return snap
}

func (c *Coordinator) transition(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.events.TurnState(s)
}

func (c *Coordinator) defect(err error) error {
	c.metrics.RecordError(string(domain.KindInvalidState), "conversation")
	observability.ReportDefect("conversation", err)
	return err
}

// SetInput records a manual edit of the input. It always clears the voice
// origin of the pending text.
func (c *Coordinator) SetInput(text string) {
	c.mu.Lock()
	c.draft.Edit(text)
	c.mu.Unlock()
	c.events.InputChanged(text, false)
}

// StartRecording opens the microphone. It is rejected unless the turn is
// Composing and no other recording is live.
func (c *Coordinator) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.state != StateComposing || c.recordStarting {
		state := c.state
		c.mu.Unlock()
		return c.defect(fmt.Errorf("%w: cannot start recording while %s", domain.ErrInvalidState, state))
	}
	c.recordStarting = true
	c.mu.Unlock()

	err := c.recorder.Start(ctx)

	c.mu.Lock()
	c.recordStarting = false
	c.mu.Unlock()

	switch {
	case err == nil:
		return nil
	case errors.Is(err, recording.ErrClosed):
		return err
	case errors.Is(err, domain.ErrInvalidState):
		return c.defect(err)
	default:
		c.events.Notice(domain.NoticeWarning, c.recorder.Message())
		return err
	}
}

// StopRecording ends the recording and fills the input with the transcript.
// An empty transcript is a success that leaves the input untouched.
func (c *Coordinator) StopRecording(ctx context.Context) (string, error) {
	result, err := c.recorder.Stop(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return "", c.defect(err)
		}
		c.events.Notice(domain.NoticeError, c.recorder.Message())
		return "", err
	}

	if result.Text == "" {
		if result.Silent {
			c.events.Notice(domain.NoticeInfo, "No speech detected.")
		}
		c.logger.Info().Bool("silent", result.Silent).Int("elapsed_seconds", result.ElapsedSeconds).Msg("Empty transcription")
		return "", nil
	}

	c.mu.Lock()
	c.draft.Transcribed(result.Text)
	c.mu.Unlock()
	c.events.InputChanged(result.Text, true)
	return result.Text, nil
}

// Attach validates f, adds it to the composer and starts uploading it.
// A rejected file never becomes an entry.
func (c *Coordinator) Attach(ctx context.Context, f attachment.File) (*attachment.Entry, error) {
	entry, err := attachment.NewEntry(f, c.policy)
	if err != nil {
		var verr *attachment.ValidationError
		if errors.As(err, &verr) {
			c.events.Notice(domain.NoticeWarning, verr.Reason)
		}
		c.metrics.RecordUpload("rejected")
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: pipeline closed", domain.ErrInvalidState)
	}
	c.draft.Add(entry)
	c.mu.Unlock()

	c.events.Upload(entry.Snapshot())
	c.startUpload(entry)
	return entry, nil
}

func (c *Coordinator) startUpload(entry *attachment.Entry) {
	ctx, cancel := context.WithCancel(c.ctx)
	handle := &uploadHandle{cancel: cancel}

	c.mu.Lock()
	c.inflight[entry.ID] = handle
	c.mu.Unlock()

	c.uploads.Go(func() error {
		defer func() {
			cancel()
			c.mu.Lock()
			if c.inflight[entry.ID] == handle {
				delete(c.inflight, entry.ID)
			}
			c.mu.Unlock()
		}()

		err := c.uploader.Upload(ctx, entry, c.events.Upload)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrInvalidState):
			_ = c.defect(err)
		case ctx.Err() == nil:
			c.events.Notice(domain.NoticeError, entry.Message())
		}
		return nil
	})
}

// RemoveAttachment drops an entry from the composer, cancelling its upload
func (c *Coordinator) RemoveAttachment(id string) error {
	c.mu.Lock()
	entry := c.draft.Remove(id)
	handle := c.inflight[id]
	c.mu.Unlock()

	if entry == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAttachment, id)
	}
	if handle != nil {
		handle.cancel()
	}
	return nil
}

// RetryAttachment resets a failed entry and uploads it again
func (c *Coordinator) RetryAttachment(id string) error {
	c.mu.Lock()
	entry := c.draft.Find(id)
	c.mu.Unlock()

	if entry == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAttachment, id)
	}
	if err := entry.Reset(); err != nil {
		return c.defect(err)
	}
	c.events.Upload(entry.Snapshot())
	c.startUpload(entry)
	return nil
}

// SubmitDraft sends whatever the composer holds
func (c *Coordinator) SubmitDraft(ctx context.Context) error {
	c.mu.Lock()
	sub := Submission{
		Text:                c.draft.Text(),
		Attachments:         c.draft.Attachments(),
		OriginatedFromVoice: c.draft.FromVoice(),
	}
	c.mu.Unlock()
	return c.Submit(ctx, sub)
}

// Submit runs one full turn. The user turn is appended before the agent is
// asked; the agent turn (or the fallback apology) is appended once its
// presentation is complete. Agent failures never surface as errors: they
// become the fallback turn and the coordinator returns to Composing.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) error {
	c.mu.Lock()
	var reject error
	switch {
	case c.closed:
		reject = fmt.Errorf("%w: pipeline closed", domain.ErrInvalidState)
	case c.state != StateComposing:
		reject = fmt.Errorf("%w: cannot submit while %s", domain.ErrInvalidState, c.state)
	case c.recordStarting || c.recorder.Active():
		reject = fmt.Errorf("%w: cannot submit while recording is %s", domain.ErrInvalidState, c.recorder.State())
	case sub.Empty():
		reject = fmt.Errorf("%w: nothing to send", domain.ErrInvalidState)
	}
	if reject != nil {
		c.mu.Unlock()
		return c.defect(reject)
	}

	user := newTurn(domain.SenderUser, sub.Text, sub.OriginatedFromVoice)
	refs := make([]orchestrator.AttachmentRef, 0, len(sub.Attachments))
	for _, e := range sub.Attachments {
		user.Attachments = append(user.Attachments, e.Snapshot())
		refs = append(refs, orchestrator.AttachmentRef{
			ID:       e.ID,
			Name:     e.File.Name,
			MIMEType: e.File.MIMEType,
			Size:     e.File.Size,
		})
	}
	history := c.log.History(c.log.Len())
	epoch := c.log.Append(user)
	c.draft.Reset()
	c.state = StateSending

	turnCtx, cancel := context.WithCancel(c.ctx)
	c.turnCancel = cancel
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, cancel)
	defer func() {
		stop()
		cancel()
		c.mu.Lock()
		c.turnCancel = nil
		c.mu.Unlock()
	}()

	c.events.TurnAppended(user)
	c.events.InputChanged("", false)
	c.events.TurnState(StateSending)

	logger := c.logger.With().Str("turn_id", user.ID).Bool("voice", sub.OriginatedFromVoice).Logger()
	logger.Info().Int("chars", len(sub.Text)).Int("attachments", len(refs)).Msg("Turn submitted")

	req := orchestrator.Request{
		ConversationID:      c.opts.ConversationID,
		AgentID:             c.opts.AgentID,
		Text:                sub.Text,
		History:             history,
		Attachments:         refs,
		Tools:               c.opts.Tools,
		OriginatedFromVoice: sub.OriginatedFromVoice,
	}

	c.transition(StateAwaitingReply)
	reply, err := c.requestReply(turnCtx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("Agent reply failed, appending fallback")
		c.metrics.RecordError(string(domain.Kind(err)), "conversation")
		observability.ReportFailure("conversation", err)

		fallback := newTurn(domain.SenderAgent, domain.MessageAgentFallback, sub.OriginatedFromVoice)
		c.clearMu.Lock()
		if c.log.AppendIn(epoch, fallback) {
			c.events.TurnAppended(fallback)
		}
		c.clearMu.Unlock()
		c.complete()
		return nil
	}

	c.transition(StatePresenting)
	c.presenter.Cancel()
	c.presentMu.Lock()
	if err := c.presenter.Present(turnCtx, reply.Text); err != nil {
		logger.Warn().Err(err).Msg("Presentation rejected")
	}

	agent := newTurn(domain.SenderAgent, reply.Text, sub.OriginatedFromVoice)
	agent.ReasoningSteps = reply.ReasoningSteps
	agent.SubAgentCalls = reply.SubAgentCalls
	c.clearMu.Lock()
	appended := c.log.AppendIn(epoch, agent)
	c.presentMu.Unlock()

	if appended {
		c.events.TurnAppended(agent)
		if sub.OriginatedFromVoice && c.speaker.Speak(reply.Text, true) {
			logger.Debug().Msg("Speaking reply")
		}
	} else {
		logger.Info().Msg("Conversation cleared during turn, reply dropped")
	}
	c.clearMu.Unlock()

	c.complete()
	return nil
}

func (c *Coordinator) requestReply(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.AgentTimeout)
	defer cancel()

	c.metrics.RecordAgentStart()
	reply, err := c.responder.Respond(ctx, req)
	c.metrics.RecordAgentEnd(err == nil)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, fmt.Errorf("%w: empty agent response", domain.ErrServiceUnavailable)
	}
	return reply, nil
}

func (c *Coordinator) complete() {
	c.transition(StateComplete)
	c.transition(StateComposing)
}

// Announce presents an agent-originated message, such as a greeting, and
// appends it. Any presentation in flight is fast-forwarded first.
func (c *Coordinator) Announce(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: pipeline closed", domain.ErrInvalidState)
	}
	c.mu.Unlock()
	epoch := c.log.Epoch()

	c.presenter.Cancel()
	c.presentMu.Lock()
	defer c.presentMu.Unlock()

	if err := c.presenter.Present(ctx, text); err != nil {
		return c.defect(err)
	}
	turn := newTurn(domain.SenderAgent, text, false)
	c.clearMu.Lock()
	if c.log.AppendIn(epoch, turn) {
		c.events.TurnAppended(turn)
	}
	c.clearMu.Unlock()
	return nil
}

// ToggleSpeech flips speech output; disabling it silences any utterance
func (c *Coordinator) ToggleSpeech() bool {
	enabled := c.speaker.ToggleEnabled()
	if enabled {
		c.events.Notice(domain.NoticeInfo, "Speech output enabled.")
	} else {
		c.events.Notice(domain.NoticeInfo, "Speech output disabled.")
	}
	return enabled
}

// Clear empties the conversation. Speech stops, typing fast-forwards and a
// reply still in flight is dropped instead of appended. A reply appended
// just before Clear is silenced with it.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	cancel := c.turnCancel
	c.mu.Unlock()

	c.clearMu.Lock()
	c.log.Clear()
	if cancel != nil {
		cancel()
	}
	c.presenter.Cancel()
	c.speaker.Stop()
	c.clearMu.Unlock()
	c.events.Cleared()
	c.logger.Info().Msg("Conversation cleared")
}

// Close tears the pipeline down: the microphone is released, speech is
// cancelled, typing is fast-forwarded and uploads are cancelled.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	var g errgroup.Group
	g.Go(func() error {
		c.recorder.Close()
		return nil
	})
	g.Go(func() error {
		c.presenter.Cancel()
		return nil
	})
	g.Go(func() error {
		c.speaker.Close()
		return nil
	})
	g.Go(c.uploads.Wait)
	err := g.Wait()

	c.logger.Info().Int("turns", c.log.Len()).Msg("Conversation closed")
	return err
}
