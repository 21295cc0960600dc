package typing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lexiqai/agent-console/internal/domain"
)

type recorder struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snapshots...)
}

func TestPresenter_RevealsPrefixesUntilDone(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	p := NewPresenter(time.Millisecond, rec.record, nil)

	full := "Here are  your\ninvoices for **March** "
	if err := p.Present(context.Background(), full); err != nil {
		t.Fatalf("Present failed: %v", err)
	}

	snap := p.Snapshot()
	if snap.State != StateDone || snap.Revealed != full {
		t.Errorf("Expected done with full text, got %+v", snap)
	}

	prev := ""
	for _, s := range rec.all() {
		if !strings.HasPrefix(full, s.Revealed) {
			t.Errorf("Revealed %q is not a prefix of full text", s.Revealed)
		}
		if len(s.Revealed) < len(prev) {
			t.Errorf("Revealed text shrank from %q to %q", prev, s.Revealed)
		}
		if (s.State == StateDone) != (s.Revealed == full) {
			t.Errorf("Done must coincide with full reveal, got %+v", s)
		}
		prev = s.Revealed
	}
}

func TestPresenter_EmptyTextIsImmediatelyDone(t *testing.T) {
	t.Parallel()

	p := NewPresenter(time.Second, nil, nil)
	if err := p.Present(context.Background(), ""); err != nil {
		t.Fatalf("Present failed: %v", err)
	}
	if p.State() != StateDone {
		t.Errorf("Expected done, got %s", p.State())
	}
}

func TestPresenter_CancelFastForwards(t *testing.T) {
	t.Parallel()

	p := NewPresenter(time.Hour, nil, nil)
	full := "this would take a very long time"

	done := make(chan error, 1)
	go func() { done <- p.Present(context.Background(), full) }()

	waitForState(t, p, StateStreaming)
	if !p.Cancel() {
		t.Error("Expected cancel to fast-forward a streaming presentation")
	}

	snap := p.Snapshot()
	if snap.State != StateDone || snap.Revealed != full {
		t.Errorf("Expected fast-forward to full text, got %+v", snap)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil from fast-forwarded present, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Present did not return after cancel")
	}

	if p.Cancel() {
		t.Error("Expected cancel on done presentation to report false")
	}
}

func TestPresenter_PresentWhileStreamingIsInvalid(t *testing.T) {
	t.Parallel()

	p := NewPresenter(time.Hour, nil, nil)
	go func() { _ = p.Present(context.Background(), "first reply text") }()
	waitForState(t, p, StateStreaming)

	err := p.Present(context.Background(), "second")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
	if got := p.Snapshot().FullText; got != "first reply text" {
		t.Errorf("Expected first presentation untouched, got %q", got)
	}
	p.Cancel()

	if err := p.Present(context.Background(), ""); err != nil {
		t.Errorf("Expected present after done to succeed, got %v", err)
	}
}

func TestPresenter_ContextCancelFastForwards(t *testing.T) {
	t.Parallel()

	p := NewPresenter(time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Present(ctx, "one two three")
		close(done)
	}()

	waitForState(t, p, StateStreaming)
	cancel()
	<-done

	if snap := p.Snapshot(); snap.Revealed != "one two three" || snap.State != StateDone {
		t.Errorf("Expected full text after teardown, got %+v", snap)
	}
}

func TestTokenEnds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []int
	}{
		{"", nil},
		{"   ", nil},
		{"one", []int{3}},
		{"one two", []int{3, 7}},
		{" a  bc\n", []int{2, 6}},
	}
	for _, tt := range tests {
		got := tokenEnds(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("tokenEnds(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("tokenEnds(%q) = %v, want %v", tt.in, got, tt.want)
				break
			}
		}
	}
}

func waitForState(t *testing.T, p *Presenter, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for p.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s, state is %s", want, p.State())
		}
		time.Sleep(time.Millisecond)
	}
}
