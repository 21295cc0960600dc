package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/observability"
	"github.com/lexiqai/agent-console/internal/resilience"
)

// StreamResponder talks to an agent that streams its reply over a WebSocket
// as JSON frames (chunk, reasoning, sub_agent, tool_call, tool_result, done, error).
// One connection is opened per turn.
type StreamResponder struct {
	url             string
	apiKey          string
	dialer          *websocket.Dialer
	circuitBreaker  *resilience.CircuitBreaker
	reconnectConfig *resilience.ReconnectConfig
	onFrame         func(StreamFrame)
	logger          zerolog.Logger
}

// NewStreamResponder creates a streaming responder. onFrame, when set,
// observes every frame as it arrives.
func NewStreamResponder(cfg *config.Config, onFrame func(StreamFrame)) *StreamResponder {
	return &StreamResponder{
		url:    websocketURL(cfg.AgentURL),
		apiKey: cfg.AgentAPIKey,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		circuitBreaker:  resilience.NewServiceBreaker("agent_stream", cfg),
		reconnectConfig: resilience.ReconnectConfigFrom(cfg),
		onFrame:         onFrame,
		logger:          observability.ForComponent("orchestrator.stream"),
	}
}

func websocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}

// Respond sends the turn and assembles the streamed reply
func (s *StreamResponder) Respond(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := s.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		conn, err := s.dial(ctx)
		if err != nil {
			return err
		}
		resp, err = s.exchange(ctx, conn, req)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", req.ConversationID).Msg("Streaming agent request failed")
		return nil, fmt.Errorf("%w: agent stream: %w", domain.ErrServiceUnavailable, err)
	}
	return resp, nil
}

func (s *StreamResponder) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	if s.apiKey != "" {
		headers.Set("Authorization", "Bearer "+s.apiKey)
	}

	var conn *websocket.Conn
	err := resilience.Reconnect(ctx, func(ctx context.Context) error {
		c, httpResp, err := s.dialer.DialContext(ctx, s.url, headers)
		if err != nil {
			if httpResp != nil {
				return fmt.Errorf("failed to connect to agent websocket (status %d): %w", httpResp.StatusCode, err)
			}
			return fmt.Errorf("failed to connect to agent websocket: %w", err)
		}
		conn = c
		return nil
	}, s.reconnectConfig, s.logger)
	return conn, err
}

func (s *StreamResponder) exchange(ctx context.Context, conn *websocket.Conn, req Request) (*Response, error) {
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	// Unblock ReadJSON when the caller gives up.
	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	resp := &Response{ConversationID: req.ConversationID}
	var text strings.Builder
	for {
		var frame StreamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, errors.New("agent closed the stream before done")
			}
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		if s.onFrame != nil {
			s.onFrame(frame)
		}

		if frame.ConversationID != "" {
			resp.ConversationID = frame.ConversationID
		}
		switch frame.Type {
		case FrameChunk:
			text.WriteString(frame.TextChunk)
		case FrameReasoning:
			if frame.Reasoning != nil {
				resp.ReasoningSteps = append(resp.ReasoningSteps, *frame.Reasoning)
			}
		case FrameSubAgent:
			if frame.SubAgent != nil {
				resp.SubAgentCalls = append(resp.SubAgentCalls, *frame.SubAgent)
			}
		case FrameToolCall:
			if frame.ToolCall != nil {
				s.logger.Debug().Str("tool", frame.ToolCall.ToolName).Str("call_id", frame.ToolCall.CallID).Msg("Agent tool call")
				resp.ToolCalls = append(resp.ToolCalls, *frame.ToolCall)
			}
		case FrameToolResult:
			if frame.ToolResult != nil {
				resp.ToolResults = append(resp.ToolResults, *frame.ToolResult)
			}
		case FrameError:
			if frame.Error == nil {
				return nil, &Error{Message: "unspecified stream error"}
			}
			return nil, frame.Error
		case FrameDone:
			text.WriteString(frame.TextChunk)
			resp.Text = text.String()
			resp.TotalTokens = frame.TotalTokens
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return resp, nil
		default:
			s.logger.Debug().Str("type", frame.Type).Msg("Ignoring unknown frame")
		}
	}
}
