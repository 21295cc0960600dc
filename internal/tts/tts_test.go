package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lexiqai/agent-console/internal/config"
)

type fakeEngine struct {
	mu     sync.Mutex
	voices []Voice
	ready  chan struct{}
	spoken []string
	block  bool
}

func newFakeEngine(voices []Voice) *fakeEngine {
	e := &fakeEngine{voices: voices, ready: make(chan struct{})}
	if voices != nil {
		close(e.ready)
	}
	return e
}

func (e *fakeEngine) Voices() []Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Voice(nil), e.voices...)
}

func (e *fakeEngine) VoicesReady() <-chan struct{} { return e.ready }

func (e *fakeEngine) load(voices []Voice) {
	e.mu.Lock()
	e.voices = voices
	e.mu.Unlock()
	close(e.ready)
}

func (e *fakeEngine) Speak(ctx context.Context, voice Voice, text string) error {
	e.mu.Lock()
	e.spoken = append(e.spoken, text)
	block := e.block
	e.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (e *fakeEngine) utterances() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.spoken...)
}

var testVoices = []Voice{
	{ID: "de-1", Name: "Greta", Language: "de"},
	{ID: "en-m", Name: "Barbershop Man", Language: "en"},
	{ID: "en-f", Name: "Helpful Woman", Language: "en"},
}

func TestSelectVoice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		voices    []Voice
		preferred string
		wantID    string
	}{
		{"female english preferred", testVoices, "", "en-f"},
		{"explicit preference wins", testVoices, "de-1", "de-1"},
		{"gender field", []Voice{{ID: "a", Name: "Alex", Language: "en-US", Gender: "feminine"}}, "", "a"},
		{"any english fallback", []Voice{{ID: "de", Language: "de"}, {ID: "en", Name: "Narrator", Language: "en_GB"}}, "", "en"},
		{"none", []Voice{{ID: "fr", Language: "fr"}}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectVoice(tt.voices, tt.preferred)
			if tt.wantID == "" {
				if got != nil {
					t.Errorf("Expected no voice, got %+v", got)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("Expected voice %s, got %+v", tt.wantID, got)
			}
		})
	}
}

func TestCleanForSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Your **invoice** is _due_ `today`", "Your invoice is _due_ today"},
		{"## Summary\nFirst line\n\nSecond line", "Summary. First line. Second line"},
		{"Done.\nNext", "Done. Next"},
		{"  spaced   out  ", "spaced out"},
		{"***", ""},
	}
	for _, tt := range tests {
		if got := CleanForSpeech(tt.in); got != tt.want {
			t.Errorf("CleanForSpeech(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlayer_InitializeVoiceIdempotent(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(testVoices)
	p := NewPlayer(engine, true, "", nil, nil)
	defer p.Close()

	p.InitializeVoice()
	first := p.Voice()
	engine.mu.Lock()
	engine.voices = []Voice{{ID: "other", Name: "Samantha", Language: "en"}}
	engine.mu.Unlock()
	p.InitializeVoice()

	if first == nil || p.Voice().ID != first.ID {
		t.Errorf("Expected voice to stay %+v, got %+v", first, p.Voice())
	}
}

func TestPlayer_InitializeVoiceDeferredUntilReady(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(nil)
	p := NewPlayer(engine, true, "", nil, nil)
	defer p.Close()

	p.InitializeVoice()
	p.InitializeVoice()
	if p.Voice() != nil {
		t.Fatal("Expected no voice before list is ready")
	}

	engine.load(testVoices)
	deadline := time.Now().Add(time.Second)
	for p.Voice() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Voice was not resolved after list became ready")
		}
		time.Sleep(time.Millisecond)
	}
	if p.Voice().ID != "en-f" {
		t.Errorf("Expected en-f, got %s", p.Voice().ID)
	}
}

func TestPlayer_SpeakGating(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(testVoices)
	p := NewPlayer(engine, true, "", nil, nil)
	defer p.Close()

	if p.Speak("hello", true) {
		t.Error("Expected no speech before a voice is resolved")
	}
	p.InitializeVoice()

	if p.Speak("typed reply", false) {
		t.Error("Expected no speech for typed turns")
	}
	if p.State() != StateIdle {
		t.Error("Expected gated speak to leave state idle")
	}

	if !p.Speak("**spoken** reply", true) {
		t.Fatal("Expected speech for voice turn")
	}
	p.wait()
	if got := engine.utterances(); len(got) != 1 || got[0] != "spoken reply" {
		t.Errorf("Expected cleaned utterance, got %v", got)
	}
	if p.State() != StateIdle {
		t.Errorf("Expected idle after completion, got %s", p.State())
	}
}

func TestPlayer_NewUtteranceCancelsPrevious(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(testVoices)
	engine.block = true
	p := NewPlayer(engine, true, "", nil, nil)
	p.InitializeVoice()

	p.Speak("first", true)
	p.Speak("second", true)
	if p.State() != StateSpeaking {
		t.Errorf("Expected speaking, got %s", p.State())
	}

	p.Stop()
	p.wait()
	if p.State() != StateIdle {
		t.Errorf("Expected idle after stop, got %s", p.State())
	}
	p.Close()
	if got := engine.utterances(); len(got) != 2 {
		t.Errorf("Expected two utterances started, got %v", got)
	}
}

func TestPlayer_ToggleDisablesAndStops(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(testVoices)
	engine.block = true

	var mu sync.Mutex
	var states []State
	p := NewPlayer(engine, true, "", nil, func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	defer p.Close()
	p.InitializeVoice()

	p.Speak("long answer", true)
	if p.ToggleEnabled() {
		t.Fatal("Expected toggle to disable speech")
	}
	if p.State() != StateIdle {
		t.Errorf("Expected idle after disabling, got %s", p.State())
	}
	if p.Speak("more", true) {
		t.Error("Expected no speech while disabled")
	}
	if !p.ToggleEnabled() {
		t.Error("Expected toggle to re-enable speech")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != StateSpeaking || states[1] != StateIdle {
		t.Errorf("Unexpected state transitions %v", states)
	}
}

type captureOutput struct {
	mu         sync.Mutex
	pcm        []byte
	sampleRate int
}

func (o *captureOutput) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pcm = append([]byte(nil), pcm...)
	o.sampleRate = sampleRate
	return nil
}

func TestCartesiaEngine(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "ck" {
			t.Errorf("Missing API key header")
		}
		switch r.URL.Path {
		case "/voices":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]string{{"id": "v1", "name": "Calm Lady", "language": "en"}},
			})
		case "/tts/bytes":
			var req CartesiaRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("Bad request body: %v", err)
			}
			if req.Voice.ID != "v1" || req.OutputFormat.Encoding != "pcm_s16le" || req.Transcript != "hi there" {
				t.Errorf("Unexpected request %+v", req)
			}
			_, _ = w.Write([]byte{1, 0, 2, 0})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	out := &captureOutput{}
	engine := NewCartesiaEngine(&config.Config{
		CartesiaAPIKey:             "ck",
		CartesiaModelID:            "sonic-english",
		SpeechSampleRate:           24000,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
	}, out)
	engine.baseURL = server.URL

	if err := engine.LoadVoices(context.Background()); err != nil {
		t.Fatalf("LoadVoices failed: %v", err)
	}
	select {
	case <-engine.VoicesReady():
	default:
		t.Fatal("Expected voices ready after load")
	}
	voices := engine.Voices()
	if len(voices) != 1 || voices[0].ID != "v1" {
		t.Fatalf("Unexpected voices %+v", voices)
	}

	if err := engine.Speak(context.Background(), voices[0], "hi there"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.pcm) != 4 || out.sampleRate != 24000 {
		t.Errorf("Unexpected playback %v at %d", out.pcm, out.sampleRate)
	}
}

func TestCartesiaEngine_NoKeyIsReadyAndEmpty(t *testing.T) {
	t.Parallel()

	engine := NewCartesiaEngine(&config.Config{}, &captureOutput{})
	if err := engine.LoadVoices(context.Background()); err != nil {
		t.Fatalf("LoadVoices failed: %v", err)
	}
	<-engine.VoicesReady()
	if len(engine.Voices()) != 0 {
		t.Error("Expected no voices without API key")
	}
}

func TestDecodeVoices_Array(t *testing.T) {
	t.Parallel()

	voices, err := decodeVoices([]byte(`[{"id":"a","name":"A","language":"en"}]`))
	if err != nil || len(voices) != 1 || voices[0].ID != "a" {
		t.Errorf("Unexpected decode result %+v, %v", voices, err)
	}
}
