package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/observability"
	"github.com/lexiqai/agent-console/internal/resilience"
)

// HTTPResponder posts a turn to the agent endpoint and waits for the full reply
type HTTPResponder struct {
	url            string
	apiKey         string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig
	logger         zerolog.Logger
}

// NewHTTPResponder creates a new agent responder over plain HTTP
func NewHTTPResponder(cfg *config.Config) *HTTPResponder {
	return &HTTPResponder{
		url:            cfg.AgentURL,
		apiKey:         cfg.AgentAPIKey,
		httpClient:     &http.Client{Timeout: time.Duration(cfg.AgentTimeout) * time.Second},
		circuitBreaker: resilience.NewServiceBreaker("agent", cfg),
		retryConfig:    resilience.RetryConfigFrom(cfg),
		logger:         observability.ForComponent("orchestrator"),
	}
}

// Respond sends the request and decodes a structured, string or plain-text reply
func (h *HTTPResponder) Respond(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp *Response
	err = h.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			var postErr error
			resp, postErr = h.post(ctx, payload)
			return postErr
		}, h.retryConfig, resilience.IsRetryable)
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("conversation_id", req.ConversationID).Msg("Agent request failed")
		return nil, fmt.Errorf("%w: agent: %w", domain.ErrServiceUnavailable, err)
	}
	return resp, nil
}

func (h *HTTPResponder) post(ctx context.Context, payload []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/plain")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	httpResp, err := h.httpClient.Do(httpReq)
	if err != nil {
		if resilience.IsRetryableNetworkError(err) {
			return nil, resilience.NewRetryableError(err)
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("failed to read agent response: %w", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		statusErr := fmt.Errorf("agent returned %d: %s", httpResp.StatusCode, truncate(strings.TrimSpace(string(body)), 256))
		if httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.NewRetryableError(statusErr)
		}
		return nil, statusErr
	}

	return DecodeResponse(body)
}

// agentEnvelope accepts the field names agent backends commonly use
type agentEnvelope struct {
	Response
	Reply   *string `json:"response"`
	Message *string `json:"message"`
	Content *string `json:"content"`
	Error   *Error  `json:"error"`
}

// DecodeResponse interprets an agent reply body. Structured objects,
// bare JSON strings and plain text are all accepted.
func DecodeResponse(body []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Response{}, nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, fmt.Errorf("failed to decode agent reply: %w", err)
		}
		return &Response{Text: text}, nil
	case '{':
		var env agentEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("failed to decode agent reply: %w", err)
		}
		if env.Error != nil && env.Error.Message != "" {
			return nil, env.Error
		}
		resp := env.Response
		if resp.Text == "" {
			for _, alt := range []*string{env.Reply, env.Message, env.Content} {
				if alt != nil && *alt != "" {
					resp.Text = *alt
					break
				}
			}
		}
		return &resp, nil
	default:
		return &Response{Text: string(trimmed)}, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
