package tts

import (
	"context"
)

// Engine is a speech synthesis backend.
//
// Voices may be empty until the engine has loaded its voice list;
// VoicesReady is closed once it has (even if the list turned out empty).
type Engine interface {
	Voices() []Voice
	VoicesReady() <-chan struct{}

	// Speak synthesizes and plays text, blocking until playback ends.
	// Cancelling ctx stops playback immediately.
	Speak(ctx context.Context, voice Voice, text string) error
}

// State of the speech player
type State int

const (
	StateIdle State = iota
	StateSpeaking
)

func (s State) String() string {
	if s == StateSpeaking {
		return "speaking"
	}
	return "idle"
}
