package orchestrator

import (
	"github.com/lexiqai/agent-console/internal/config"
)

// NewResponder returns the responder selected by AGENT_TRANSPORT
func NewResponder(cfg *config.Config, onFrame func(StreamFrame)) Responder {
	if cfg.AgentTransport == config.TransportWebSocket {
		return NewStreamResponder(cfg, onFrame)
	}
	return NewHTTPResponder(cfg)
}
