package stt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/domain"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		TranscriptionProvider:      config.ProviderHTTP,
		TranscriptionURL:           url,
		TranscriptionAPIKey:        "test-key",
		TranscriptionModel:         "whisper-1",
		TranscriptionTimeout:       5,
		DeepgramAPIKey:             "dg-key",
		DeepgramModel:              "nova-2",
		DeepgramLanguage:           "en",
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
		RetryMaxAttempts:           2,
		RetryInitialBackoff:        1,
	}
}

func TestHTTPClient_Transcribe(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Expected multipart form: %v", err)
			return
		}
		if model := r.FormValue("model"); model != "whisper-1" {
			t.Errorf("Expected model whisper-1, got %q", model)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected file part: %v", err)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if string(body) != "RIFFdata" {
			t.Errorf("Unexpected audio body %q", body)
		}
		if header.Filename != "recording.wav" {
			t.Errorf("Expected default filename, got %q", header.Filename)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  hello world "})
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(server.URL))
	result, err := client.Transcribe(context.Background(), Payload{Audio: []byte("RIFFdata")})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("Expected trimmed text, got %q", result.Text)
	}
	if result.Provider != config.ProviderHTTP {
		t.Errorf("Expected provider http, got %q", result.Provider)
	}
}

func TestHTTPClient_MissingKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.TranscriptionAPIKey = ""
	_, err := NewHTTPClient(cfg).Transcribe(context.Background(), Payload{Audio: []byte{1}})
	if !errors.Is(err, domain.ErrConfigurationMissing) {
		t.Errorf("Expected ErrConfigurationMissing, got %v", err)
	}
}

func TestHTTPClient_ServerErrorRetriesThenFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPClient(testConfig(server.URL)).Transcribe(context.Background(), Payload{Audio: []byte{1}})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls.Load())
	}
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewHTTPClient(testConfig(server.URL)).Transcribe(context.Background(), Payload{Audio: []byte{1}})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", calls.Load())
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPClient(testConfig(url)).Transcribe(context.Background(), Payload{Audio: []byte{1}})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
}

func TestDeepgramClient_Transcribe(t *testing.T) {
	t.Parallel()

	client := NewDeepgramClient(testConfig(""))
	client.transcribe = func(ctx context.Context, audio []byte, options *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		if options.Model != "nova-2" || !options.Punctuate {
			t.Errorf("Unexpected options %+v", options)
		}
		return map[string]any{
			"results": map[string]any{
				"channels": []any{
					map[string]any{
						"alternatives": []any{
							map[string]any{"transcript": "book a table", "confidence": 0.93},
						},
					},
				},
			},
		}, nil
	}

	result, err := client.Transcribe(context.Background(), Payload{Audio: []byte{1, 2}})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Text != "book a table" {
		t.Errorf("Expected transcript, got %q", result.Text)
	}
	if result.Confidence != 0.93 {
		t.Errorf("Expected confidence 0.93, got %f", result.Confidence)
	}
}

func TestDeepgramClient_Failure(t *testing.T) {
	t.Parallel()

	client := NewDeepgramClient(testConfig(""))
	client.transcribe = func(ctx context.Context, audio []byte, options *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return nil, errors.New("401 invalid credentials")
	}

	_, err := client.Transcribe(context.Background(), Payload{Audio: []byte{1}})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
}

func TestDeepgramClient_MissingKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig("")
	cfg.DeepgramAPIKey = ""
	_, err := NewDeepgramClient(cfg).Transcribe(context.Background(), Payload{Audio: []byte{1}})
	if !errors.Is(err, domain.ErrConfigurationMissing) {
		t.Errorf("Expected ErrConfigurationMissing, got %v", err)
	}
}

func TestDecodePreRecorded_NoAlternatives(t *testing.T) {
	t.Parallel()

	result, err := decodePreRecorded(map[string]any{"results": map[string]any{}})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if result.Text != "" {
		t.Errorf("Expected empty text, got %q", result.Text)
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	cfg := testConfig("")
	if NewClient(cfg).Name() != config.ProviderHTTP {
		t.Error("Expected http client by default")
	}
	cfg.TranscriptionProvider = config.ProviderDeepgram
	if NewClient(cfg).Name() != config.ProviderDeepgram {
		t.Error("Expected deepgram client")
	}
}
