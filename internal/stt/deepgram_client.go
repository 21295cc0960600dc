package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/observability"
	"github.com/lexiqai/agent-console/internal/resilience"
)

var initDeepgramOnce sync.Once

// preRecorder is the slice of the Deepgram REST client we call.
type preRecorder func(ctx context.Context, audio []byte, options *interfaces.PreRecordedTranscriptionOptions) (any, error)

// DeepgramClient implements Client using Deepgram's pre-recorded REST API
type DeepgramClient struct {
	config         *config.Config
	transcribe     preRecorder
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig
	logger         zerolog.Logger
}

// NewDeepgramClient creates a new Deepgram pre-recorded client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	d := &DeepgramClient{
		config:         cfg,
		circuitBreaker: resilience.NewServiceBreaker("deepgram", cfg),
		retryConfig:    resilience.RetryConfigFrom(cfg),
		logger:         observability.ForComponent("stt.deepgram"),
	}
	d.transcribe = d.fromStream
	return d
}

func (d *DeepgramClient) Name() string { return config.ProviderDeepgram }

func (d *DeepgramClient) fromStream(ctx context.Context, audio []byte, options *interfaces.PreRecordedTranscriptionOptions) (any, error) {
	initDeepgramOnce.Do(func() {
		listenClient.Init(listenClient.InitLib{LogLevel: listenClient.LogLevelErrorOnly})
	})
	c := listenClient.NewREST(d.config.DeepgramAPIKey, &interfaces.ClientOptions{})
	return api.New(c).FromStream(ctx, bytes.NewReader(audio), options)
}

// Transcribe sends the recording to Deepgram and returns the best alternative
func (d *DeepgramClient) Transcribe(ctx context.Context, payload Payload) (*Result, error) {
	if strings.TrimSpace(d.config.DeepgramAPIKey) == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not set", domain.ErrConfigurationMissing)
	}

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.config.DeepgramModel,
		Language:    d.config.DeepgramLanguage,
		Punctuate:   true,
		SmartFormat: true,
	}

	var raw any
	err := d.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			res, callErr := d.transcribe(ctx, payload.Audio, options)
			if callErr != nil {
				if resilience.IsRetryableNetworkError(callErr) {
					return resilience.NewRetryableError(callErr)
				}
				return callErr
			}
			raw = res
			return nil
		}, d.retryConfig, resilience.IsRetryable)
	})
	if err != nil {
		d.logger.Warn().Err(err).Int("audio_bytes", len(payload.Audio)).Msg("Deepgram transcription failed")
		return nil, fmt.Errorf("%w: deepgram: %w", domain.ErrServiceUnavailable, err)
	}

	result, err := decodePreRecorded(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: deepgram: %w", domain.ErrServiceUnavailable, err)
	}
	d.logger.Debug().Float64("confidence", result.Confidence).Int("chars", len(result.Text)).Msg("Deepgram transcription received")
	return result, nil
}

// preRecordedResponse mirrors the JSON shape of a pre-recorded response
type preRecordedResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func decodePreRecorded(raw any) (*Result, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	var resp preRecordedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := &Result{Provider: config.ProviderDeepgram}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return result, nil
	}
	alt := resp.Results.Channels[0].Alternatives[0]
	result.Text = strings.TrimSpace(alt.Transcript)
	result.Confidence = alt.Confidence
	return result, nil
}
