package resilience

import (
	"time"

	"github.com/lexiqai/agent-console/internal/config"
	"github.com/lexiqai/agent-console/internal/observability"
)

// NewServiceBreaker builds the breaker for one remote service from config
// and publishes its state and failures to the metrics registry.
func NewServiceBreaker(service string, cfg *config.Config) *CircuitBreaker {
	return NewCircuitBreaker(
		service,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	).Observe(func(name string, state CircuitState, failed bool) {
		observability.UpdateCircuitBreakerState(name, int(state))
		if failed {
			observability.IncrementCircuitBreakerFailures(name)
		}
	})
}

// RetryConfigFrom derives the retry policy for remote calls from config.
func RetryConfigFrom(cfg *config.Config) *RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.RetryMaxAttempts > 0 {
		rc.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialBackoff > 0 {
		rc.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond
	}
	return rc
}

// ReconnectConfigFrom derives the dial policy for streaming connections.
func ReconnectConfigFrom(cfg *config.Config) *ReconnectConfig {
	rc := DefaultReconnectConfig()
	if cfg.ReconnectMaxAttempts > 0 {
		rc.MaxAttempts = cfg.ReconnectMaxAttempts
	}
	if cfg.ReconnectBackoff > 0 {
		rc.Backoff = time.Duration(cfg.ReconnectBackoff) * time.Millisecond
	}
	return rc
}
