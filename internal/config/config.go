package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Transcription providers
const (
	ProviderHTTP     = "http"
	ProviderDeepgram = "deepgram"
)

// Agent transports
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Config holds all configuration for the agent console turn pipeline
type Config struct {
	// Transcription (speech-to-text) configuration.
	// An empty key is allowed: voice input then fails with ConfigurationMissing
	// while typed input keeps working.
	TranscriptionProvider string `envconfig:"TRANSCRIPTION_PROVIDER" default:"http"` // http, deepgram
	TranscriptionURL      string `envconfig:"TRANSCRIPTION_URL" default:"https://api.openai.com/v1/audio/transcriptions"`
	TranscriptionAPIKey   string `envconfig:"TRANSCRIPTION_API_KEY" default:""`
	TranscriptionModel    string `envconfig:"TRANSCRIPTION_MODEL" default:"whisper-1"`
	TranscriptionTimeout  int    `envconfig:"TRANSCRIPTION_TIMEOUT" default:"30"` // seconds

	// Deepgram pre-recorded API (used when TRANSCRIPTION_PROVIDER=deepgram)
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Agent-response collaborator
	AgentURL            string   `envconfig:"AGENT_URL" default:"http://localhost:8000/api/chat"`
	AgentTransport      string   `envconfig:"AGENT_TRANSPORT" default:"http"` // http, websocket
	AgentAPIKey         string   `envconfig:"AGENT_API_KEY" default:""`
	AgentID             string   `envconfig:"AGENT_ID" default:"default"`
	AgentTools          []string `envconfig:"AGENT_TOOLS" default:""`
	AgentTimeout        int      `envconfig:"AGENT_TIMEOUT" default:"60"`        // seconds
	AgentGRPCHealthAddr string   `envconfig:"AGENT_GRPC_HEALTH_ADDR" default:""` // host:port, optional

	// Speech synthesis (Cartesia)
	CartesiaAPIKey   string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaModelID  string `envconfig:"CARTESIA_MODEL_ID" default:"sonic-english"`
	CartesiaVoiceID  string `envconfig:"CARTESIA_VOICE_ID" default:""` // preferred voice, optional
	SpeechEnabled    bool   `envconfig:"SPEECH_ENABLED" default:"true"`
	SpeechSampleRate int    `envconfig:"SPEECH_SAMPLE_RATE" default:"24000"`
	PlayerCommand    string `envconfig:"PLAYER_COMMAND" default:"ffplay"`

	// Microphone capture
	RecorderCommand  string  `envconfig:"RECORDER_COMMAND" default:"ffmpeg"`
	AudioInputFormat string  `envconfig:"AUDIO_INPUT_FORMAT" default:"pulse"`
	AudioInputDevice string  `envconfig:"AUDIO_INPUT_DEVICE" default:"default"`
	SampleRate       int     `envconfig:"SAMPLE_RATE" default:"16000"`
	Channels         int     `envconfig:"CHANNELS" default:"1"`
	ChunkSize        int     `envconfig:"AUDIO_CHUNK_SIZE" default:"4096"`
	RecordingTickMs  int     `envconfig:"RECORDING_TICK_MS" default:"1000"`
	SilenceThreshold float64 `envconfig:"SILENCE_THRESHOLD" default:"500.0"` // RMS energy threshold

	// Attachments
	AttachmentMaxSizeMB int    `envconfig:"ATTACHMENT_MAX_SIZE_MB" default:"10"`
	UploadURL           string `envconfig:"UPLOAD_URL" default:""` // empty: simulated progress
	UploadTickMs        int    `envconfig:"UPLOAD_TICK_MS" default:"200"`

	// Typing presentation
	TypingMaxDelayMs int `envconfig:"TYPING_MAX_DELAY_MS" default:"50"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:"127.0.0.1:9464"`
	SentryDSN      string `envconfig:"SENTRY_DSN" default:""`
	Environment    string `envconfig:"ENVIRONMENT" default:"production"`
	StrictDefects  bool   `envconfig:"STRICT_DEFECTS" default:"false"` // panic on InvalidState
}

// Load reads configuration from environment variables.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	c.TranscriptionProvider = strings.ToLower(strings.TrimSpace(c.TranscriptionProvider))
	switch c.TranscriptionProvider {
	case ProviderHTTP, ProviderDeepgram:
	default:
		return fmt.Errorf("TRANSCRIPTION_PROVIDER must be %q or %q, got %q", ProviderHTTP, ProviderDeepgram, c.TranscriptionProvider)
	}

	c.AgentTransport = strings.ToLower(strings.TrimSpace(c.AgentTransport))
	switch c.AgentTransport {
	case TransportHTTP, TransportWebSocket:
	default:
		return fmt.Errorf("AGENT_TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportWebSocket, c.AgentTransport)
	}

	if c.AttachmentMaxSizeMB <= 0 {
		return fmt.Errorf("ATTACHMENT_MAX_SIZE_MB must be positive")
	}
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return fmt.Errorf("SAMPLE_RATE and CHANNELS must be positive")
	}
	if c.ChunkSize < 256 {
		c.ChunkSize = 4096
	}
	if c.RecordingTickMs <= 0 {
		c.RecordingTickMs = 1000
	}
	return nil
}

// TranscriptionCredential returns the key for the selected provider.
func (c *Config) TranscriptionCredential() string {
	if c.TranscriptionProvider == ProviderDeepgram {
		return c.DeepgramAPIKey
	}
	return c.TranscriptionAPIKey
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
