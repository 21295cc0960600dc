package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/domain"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		AgentURL:                   url,
		AgentTransport:             config.TransportHTTP,
		AgentAPIKey:                "agent-key",
		AgentTimeout:               5,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
		RetryMaxAttempts:           2,
		RetryInitialBackoff:        1,
		ReconnectMaxAttempts:       2,
		ReconnectBackoff:           1,
	}
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantText  string
		wantSteps int
		wantErr   bool
	}{
		{"structured", `{"text":"Here you go","reasoning_steps":[{"title":"lookup"}],"sub_agent_calls":[{"agent":"billing"}]}`, "Here you go", 1, false},
		{"response field", `{"response":"From response"}`, "From response", 0, false},
		{"message field", `{"message":"From message"}`, "From message", 0, false},
		{"json string", `"just a string"`, "just a string", 0, false},
		{"plain text", "plain reply\n", "plain reply", 0, false},
		{"empty", "", "", 0, false},
		{"error object", `{"error":{"code":"rate_limited","message":"slow down"}}`, "", 0, true},
		{"broken json", `{"text":`, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %+v", resp)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if resp.Text != tt.wantText {
				t.Errorf("Expected text %q, got %q", tt.wantText, resp.Text)
			}
			if len(resp.ReasoningSteps) != tt.wantSteps {
				t.Errorf("Expected %d reasoning steps, got %d", tt.wantSteps, len(resp.ReasoningSteps))
			}
		})
	}
}

func TestHTTPResponder_Respond(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer agent-key" {
			t.Errorf("Missing bearer token")
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Bad request: %v", err)
		}
		if req.Text != "show my invoices" || len(req.History) != 1 || !req.OriginatedFromVoice {
			t.Errorf("Unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "You have 3 invoices."})
	}))
	defer server.Close()

	resp, err := NewHTTPResponder(testConfig(server.URL)).Respond(context.Background(), Request{
		ConversationID:      "c1",
		Text:                "show my invoices",
		History:             []HistoryTurn{{Role: "user", Content: "hi"}},
		OriginatedFromVoice: true,
	})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if resp.Text != "You have 3 invoices." {
		t.Errorf("Unexpected reply %q", resp.Text)
	}
}

func TestHTTPResponder_ServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewHTTPResponder(testConfig(server.URL)).Respond(context.Background(), Request{Text: "hi"})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls.Load())
	}
}

var upgrader = websocket.Upgrader{}

func streamServer(t *testing.T, frames []StreamFrame) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("Failed to read request: %v", err)
			return
		}
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
}

func TestStreamResponder_AssemblesReply(t *testing.T) {
	t.Parallel()

	server := streamServer(t, []StreamFrame{
		{Type: FrameReasoning, Reasoning: &ReasoningStep{Title: "Searching invoices"}},
		{Type: FrameSubAgent, SubAgent: &SubAgentCall{Agent: "billing", Task: "list"}},
		{Type: FrameToolCall, ToolCall: &ToolCall{ToolName: "invoices.list", CallID: "t1"}},
		{Type: FrameToolResult, ToolResult: &ToolResult{CallID: "t1", Success: true}},
		{Type: FrameChunk, TextChunk: "You have "},
		{Type: FrameChunk, TextChunk: "3 invoices."},
		{Type: FrameDone, TotalTokens: 42, ConversationID: "c9"},
	})
	defer server.Close()

	var frames atomic.Int32
	responder := NewStreamResponder(testConfig(server.URL), func(StreamFrame) { frames.Add(1) })
	resp, err := responder.Respond(context.Background(), Request{ConversationID: "c1", Text: "invoices?"})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if resp.Text != "You have 3 invoices." {
		t.Errorf("Unexpected text %q", resp.Text)
	}
	if len(resp.ReasoningSteps) != 1 || len(resp.SubAgentCalls) != 1 || len(resp.ToolCalls) != 1 || len(resp.ToolResults) != 1 {
		t.Errorf("Expected annotations to be collected, got %+v", resp)
	}
	if resp.TotalTokens != 42 || resp.ConversationID != "c9" {
		t.Errorf("Unexpected done metadata %+v", resp)
	}
	if frames.Load() != 7 {
		t.Errorf("Expected 7 observed frames, got %d", frames.Load())
	}
}

func TestStreamResponder_ErrorFrame(t *testing.T) {
	t.Parallel()

	server := streamServer(t, []StreamFrame{
		{Type: FrameChunk, TextChunk: "partial"},
		{Type: FrameError, Error: &Error{Code: "internal", Message: "model crashed"}},
	})
	defer server.Close()

	_, err := NewStreamResponder(testConfig(server.URL), nil).Respond(context.Background(), Request{Text: "hi"})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
	var agentErr *Error
	if !errors.As(err, &agentErr) || agentErr.Code != "internal" {
		t.Errorf("Expected agent error to be wrapped, got %v", err)
	}
}

func TestStreamResponder_Unreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewStreamResponder(testConfig(url), nil).Respond(context.Background(), Request{Text: "hi"})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
}

func TestWebsocketURL(t *testing.T) {
	t.Parallel()

	if got := websocketURL("https://agent.example/ws"); got != "wss://agent.example/ws" {
		t.Errorf("Unexpected %q", got)
	}
	if got := websocketURL("http://localhost:8000/ws"); !strings.HasPrefix(got, "ws://") {
		t.Errorf("Unexpected %q", got)
	}
	if got := websocketURL("ws://x"); got != "ws://x" {
		t.Errorf("Unexpected %q", got)
	}
}

func TestNewResponder(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://localhost")
	if _, ok := NewResponder(cfg, nil).(*HTTPResponder); !ok {
		t.Error("Expected HTTP responder")
	}
	cfg.AgentTransport = config.TransportWebSocket
	if _, ok := NewResponder(cfg, nil).(*StreamResponder); !ok {
		t.Error("Expected stream responder")
	}
}

func TestGRPCHealthProbe(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	probe, err := NewGRPCHealthProbe(lis.Addr().String(), "")
	if err != nil {
		t.Fatalf("NewGRPCHealthProbe failed: %v", err)
	}
	defer probe.Close()

	ok, err := probe.Check(context.Background())
	if err != nil || !ok {
		t.Errorf("Expected serving, got %v, %v", ok, err)
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	ok, err = probe.Check(context.Background())
	if err != nil || ok {
		t.Errorf("Expected not serving, got %v, %v", ok, err)
	}
}
