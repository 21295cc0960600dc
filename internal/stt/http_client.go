package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/observability"
	"github.com/lexiqai/agent-console/internal/resilience"
)

// HTTPClient posts recordings to an OpenAI-compatible
// /audio/transcriptions endpoint as multipart form data.
type HTTPClient struct {
	url            string
	apiKey         string
	model          string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig
	logger         zerolog.Logger
}

// NewHTTPClient creates a new transcription client
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		url:            cfg.TranscriptionURL,
		apiKey:         cfg.TranscriptionAPIKey,
		model:          cfg.TranscriptionModel,
		httpClient:     &http.Client{Timeout: time.Duration(cfg.TranscriptionTimeout) * time.Second},
		circuitBreaker: resilience.NewServiceBreaker("transcription", cfg),
		retryConfig:    resilience.RetryConfigFrom(cfg),
		logger:         observability.ForComponent("stt"),
	}
}

func (c *HTTPClient) Name() string { return config.ProviderHTTP }

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the payload and returns the recognized text
func (c *HTTPClient) Transcribe(ctx context.Context, payload Payload) (*Result, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, fmt.Errorf("%w: TRANSCRIPTION_API_KEY is not set", domain.ErrConfigurationMissing)
	}

	var text string
	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			var postErr error
			text, postErr = c.post(ctx, payload)
			return postErr
		}, c.retryConfig, resilience.IsRetryable)
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("audio_bytes", len(payload.Audio)).Msg("Transcription request failed")
		return nil, fmt.Errorf("%w: transcription: %w", domain.ErrServiceUnavailable, err)
	}

	c.logger.Debug().Int("chars", len(text)).Float64("audio_seconds", payload.DurationSeconds).Msg("Transcription received")
	return &Result{Text: strings.TrimSpace(text), Provider: c.Name()}, nil
}

func (c *HTTPClient) post(ctx context.Context, payload Payload) (string, error) {
	body, contentType, err := buildForm(payload, c.model)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resilience.IsRetryableNetworkError(err) {
			return "", resilience.NewRetryableError(err)
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", resilience.NewRetryableError(statusErr)
		}
		return "", statusErr
	}

	var decoded transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}
	return decoded.Text, nil
}

func buildForm(payload Payload, model string) (*bytes.Buffer, string, error) {
	filename := payload.Filename
	if filename == "" {
		filename = "recording.wav"
	}
	mimeType := payload.MIMEType
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(payload.Audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := writer.WriteField("model", model); err != nil {
		return nil, "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
