package stt

import (
	"github.com/lexiqai/agent-console/internal/config"
)

// NewClient returns the transcription client selected by TRANSCRIPTION_PROVIDER
func NewClient(cfg *config.Config) Client {
	if cfg.TranscriptionProvider == config.ProviderDeepgram {
		return NewDeepgramClient(cfg)
	}
	return NewHTTPClient(cfg)
}
