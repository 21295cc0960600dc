package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/attachment"
	"github.com/lexiqai/agent-console/internal/audio"
	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/conversation"
	"github.com/lexiqai/agent-console/internal/observability"
	"github.com/lexiqai/agent-console/internal/orchestrator"
	"github.com/lexiqai/agent-console/internal/recording"
	"github.com/lexiqai/agent-console/internal/stt"
	"github.com/lexiqai/agent-console/internal/tts"
	"github.com/lexiqai/agent-console/internal/typing"
)

// App is the wired turn pipeline plus the pieces a surface needs around it
type App struct {
	Config    *config.Config
	SessionID string
	Pipeline  *conversation.Coordinator
	Player    *tts.Player
	Engine    *tts.CartesiaEngine
	Metrics   *observability.Metrics

	// ReadinessChecks feed observability.ReadinessHandler
	ReadinessChecks map[string]observability.HealthCheckFunc

	probe  *orchestrator.GRPCHealthProbe
	logger zerolog.Logger
}

// Build wires every component from cfg. events may be nil.
func Build(cfg *config.Config, events conversation.Events) (*App, error) {
	if events == nil {
		events = conversation.NopEvents{}
	}

	sessionID := observability.NewSessionID()
	logger := observability.WithSession(sessionID)

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics(sessionID)
	}

	recorder := recording.NewSession(
		audio.NewFFmpegCapture(cfg.RecorderCommand),
		stt.NewClient(cfg),
		recording.ConfigFrom(cfg),
		recording.Hooks{OnState: events.RecordingState, OnTick: events.RecordingTick},
		metrics,
	)

	responder := orchestrator.NewResponder(cfg, func(f orchestrator.StreamFrame) {
		switch f.Type {
		case orchestrator.FrameReasoning:
			if f.Reasoning != nil {
				logger.Debug().Str("step", f.Reasoning.Title).Msg("Agent reasoning")
			}
		case orchestrator.FrameSubAgent:
			if f.SubAgent != nil {
				logger.Debug().Str("agent", f.SubAgent.Agent).Msg("Sub-agent call")
			}
		}
	})

	presenter := typing.NewPresenter(time.Duration(cfg.TypingMaxDelayMs)*time.Millisecond, events.Reveal, metrics)

	engine := tts.NewCartesiaEngine(cfg, audio.NewFFplayOutput(cfg.PlayerCommand))
	speechOn := cfg.SpeechEnabled && strings.TrimSpace(cfg.CartesiaAPIKey) != ""
	player := tts.NewPlayer(engine, speechOn, cfg.CartesiaVoiceID, metrics, events.SpeechState)

	var transport attachment.Transport
	if cfg.UploadURL != "" {
		transport = attachment.NewHTTPTransport(cfg.UploadURL, &http.Client{})
	} else {
		transport = attachment.NewSimulatedTransport(time.Duration(cfg.UploadTickMs) * time.Millisecond)
	}

	coordinator := conversation.NewCoordinator(conversation.Dependencies{
		Recorder:  recorder,
		Responder: responder,
		Presenter: presenter,
		Speaker:   player,
		Uploader:  attachment.NewUploader(transport, metrics),
		Policy:    attachment.PolicyWithLimit(cfg.AttachmentMaxSizeMB),
		Events:    events,
		Metrics:   metrics,
	}, conversation.Options{
		ConversationID: sessionID,
		AgentID:        cfg.AgentID,
		Tools:          cfg.AgentTools,
		AgentTimeout:   time.Duration(cfg.AgentTimeout) * time.Second,
	})

	app := &App{
		Config:    cfg,
		SessionID: sessionID,
		Pipeline:  coordinator,
		Player:    player,
		Engine:    engine,
		Metrics:   metrics,
		logger:    logger,
	}
	app.ReadinessChecks = map[string]observability.HealthCheckFunc{
		"transcription": func(context.Context) (bool, error) {
			if cfg.TranscriptionCredential() == "" {
				return false, errors.New("no transcription credential configured")
			}
			return true, nil
		},
		"speech_voices": func(context.Context) (bool, error) {
			select {
			case <-engine.VoicesReady():
				return len(engine.Voices()) > 0 || !speechOn, nil
			default:
				return false, errors.New("voice list still loading")
			}
		},
	}

	if cfg.AgentGRPCHealthAddr != "" {
		probe, err := orchestrator.NewGRPCHealthProbe(cfg.AgentGRPCHealthAddr, "")
		if err != nil {
			_ = coordinator.Close()
			return nil, err
		}
		app.probe = probe
		app.ReadinessChecks["agent"] = probe.Check
	}

	logger.Info().
		Str("transcription_provider", cfg.TranscriptionProvider).
		Str("agent_transport", cfg.AgentTransport).
		Bool("speech", speechOn).
		Bool("real_uploads", cfg.UploadURL != "").
		Msg("Turn pipeline ready")
	return app, nil
}

// Start loads the synthesis voices in the background and resolves the
// speaking voice once they arrive.
func (a *App) Start(ctx context.Context) {
	a.Player.InitializeVoice()
	go func() {
		if err := a.Engine.LoadVoices(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to load synthesis voices")
		}
	}()
}

// Close tears the pipeline down and releases the health probe
func (a *App) Close() error {
	err := a.Pipeline.Close()
	if a.probe != nil {
		err = errors.Join(err, a.probe.Close())
	}
	return err
}
