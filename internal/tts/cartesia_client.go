package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/audio"
	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/observability"
	"github.com/lexiqai/agent-console/internal/resilience"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaVersion = "2024-06-10"
)

// CartesiaEngine implements Engine using Cartesia's REST API and a local
// audio output.
type CartesiaEngine struct {
	apiKey         string
	baseURL        string
	modelID        string
	sampleRate     int
	output         audio.Output
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger

	mu        sync.RWMutex
	voices    []Voice
	ready     chan struct{}
	readyOnce sync.Once
}

// CartesiaRequest represents the request payload for the Cartesia bytes endpoint
type CartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        CartesiaVoiceSpec    `json:"voice"`
	OutputFormat CartesiaOutputFormat `json:"output_format"`
	Language     string               `json:"language,omitempty"`
}

type CartesiaVoiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type cartesiaVoice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}

// NewCartesiaEngine creates a new Cartesia engine playing through output
func NewCartesiaEngine(cfg *config.Config, output audio.Output) *CartesiaEngine {
	sampleRate := cfg.SpeechSampleRate
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &CartesiaEngine{
		apiKey:         cfg.CartesiaAPIKey,
		baseURL:        cartesiaBaseURL,
		modelID:        cfg.CartesiaModelID,
		sampleRate:     sampleRate,
		output:         output,
		httpClient:     &http.Client{},
		circuitBreaker: resilience.NewServiceBreaker("cartesia", cfg),
		logger:         observability.ForComponent("tts.cartesia"),
		ready:          make(chan struct{}),
	}
}

func (c *CartesiaEngine) Voices() []Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Voice(nil), c.voices...)
}

func (c *CartesiaEngine) VoicesReady() <-chan struct{} {
	return c.ready
}

// LoadVoices fetches the voice list. VoicesReady is closed afterwards
// whether or not the request succeeded.
func (c *CartesiaEngine) LoadVoices(ctx context.Context) error {
	defer c.readyOnce.Do(func() { close(c.ready) })

	if strings.TrimSpace(c.apiKey) == "" {
		c.logger.Info().Msg("CARTESIA_API_KEY not set, speech output disabled")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cartesia voices returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read voices: %w", err)
	}
	listed, err := decodeVoices(body)
	if err != nil {
		return err
	}

	voices := make([]Voice, 0, len(listed))
	for _, v := range listed {
		voices = append(voices, Voice{ID: v.ID, Name: v.Name, Language: v.Language, Gender: v.Gender})
	}
	c.mu.Lock()
	c.voices = voices
	c.mu.Unlock()

	c.logger.Info().Int("voices", len(voices)).Msg("Cartesia voices loaded")
	return nil
}

// The voices endpoint returns either a bare array or a paginated object.
func decodeVoices(body []byte) ([]cartesiaVoice, error) {
	trimmed := bytes.TrimSpace(body)
	var voices []cartesiaVoice
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &voices); err != nil {
			return nil, fmt.Errorf("failed to decode voices: %w", err)
		}
		return voices, nil
	}
	var page struct {
		Data []cartesiaVoice `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("failed to decode voices: %w", err)
	}
	return page.Data, nil
}

// Speak synthesizes raw PCM and plays it
func (c *CartesiaEngine) Speak(ctx context.Context, voice Voice, text string) error {
	var pcm []byte
	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var synthErr error
		pcm, synthErr = c.synthesize(ctx, voice, text)
		return synthErr
	})
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		c.logger.Warn().Msg("Cartesia returned empty audio data")
		return nil
	}
	return c.output.Play(ctx, pcm, c.sampleRate)
}

func (c *CartesiaEngine) synthesize(ctx context.Context, voice Voice, text string) ([]byte, error) {
	reqBody := CartesiaRequest{
		ModelID:    c.modelID,
		Transcript: text,
		Voice:      CartesiaVoiceSpec{Mode: "id", ID: voice.ID},
		OutputFormat: CartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: c.sampleRate,
		},
		Language: strings.SplitN(voice.Language, "-", 2)[0],
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts/bytes", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cartesia API returned status %d", resp.StatusCode)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return pcm, nil
}

func (c *CartesiaEngine) setHeaders(req *http.Request) {
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
}
