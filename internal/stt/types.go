package stt

import (
	"context"
)

// Payload is one finished recording ready for transcription
type Payload struct {
	// Audio is the encoded file body (WAV)
	Audio []byte

	// MIMEType of Audio, e.g. audio/wav
	MIMEType string

	// Filename presented to the service
	Filename string

	SampleRate      int
	DurationSeconds float64
}

// Result is the text recognized from a Payload
type Result struct {
	// Text may be empty when the recording held no speech
	Text string

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// Provider names the service that produced the result
	Provider string
}

// Client is the interface for speech-to-text clients.
//
// Errors wrap domain.ErrConfigurationMissing when no credential is
// configured and domain.ErrServiceUnavailable for any transport failure.
type Client interface {
	Transcribe(ctx context.Context, payload Payload) (*Result, error)
	Name() string
}
