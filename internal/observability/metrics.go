package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recording metrics
	activeRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_console_active_recordings",
		Help: "Number of microphone recordings currently capturing",
	})

	recordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_console_recordings_total",
		Help: "Recordings by outcome",
	}, []string{"outcome"})

	recordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_console_recording_duration_seconds",
		Help:    "Elapsed seconds of finished recordings",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	// Transcription metrics
	transcriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_console_transcription_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"status"})

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_console_transcription_latency_seconds",
		Help:    "Transcription round-trip latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Agent metrics
	agentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_console_agent_requests_total",
		Help: "Total number of agent-response requests",
	}, []string{"status"})

	agentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_console_agent_latency_seconds",
		Help:    "Agent-response latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	fallbackTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_console_fallback_turns_total",
		Help: "Apology turns appended after agent failures",
	})

	// Presentation and speech metrics
	presentationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_console_presentations_total",
		Help: "Typing presentations by how they finished",
	}, []string{"finish"}) // finish: "natural" or "fast_forward"

	utterancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_console_utterances_total",
		Help: "Speech utterances by outcome",
	}, []string{"outcome"})

	// Attachment metrics
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_console_uploads_total",
		Help: "Attachment uploads by outcome",
	}, []string{"outcome"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_console_errors_total",
		Help: "Total number of errors",
	}, []string{"kind", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_console_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_console_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_console_audio_bytes_captured_total",
		Help: "Total microphone bytes captured",
	})
)

// Metrics times in-flight operations for one pipeline instance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionID          string
	transcriptionStart time.Time
	agentStart         time.Time
	mu                 sync.Mutex
}

// NewMetrics creates a metrics tracker for a pipeline session
func NewMetrics(sessionID string) *Metrics {
	return &Metrics{sessionID: sessionID}
}

// RecordRecordingStart marks a microphone capture as live
func (m *Metrics) RecordRecordingStart() {
	if m == nil {
		return
	}
	activeRecordings.Inc()
}

// RecordRecordingEnd records how a capture finished and how long it ran
func (m *Metrics) RecordRecordingEnd(outcome string, elapsedSeconds int) {
	if m == nil {
		return
	}
	activeRecordings.Dec()
	recordingsTotal.WithLabelValues(outcome).Inc()
	recordingDuration.Observe(float64(elapsedSeconds))
}

// RecordTranscriptionStart records the start of a transcription request
func (m *Metrics) RecordTranscriptionStart() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.transcriptionStart = time.Now()
	m.mu.Unlock()
}

// RecordTranscriptionEnd records the end of a transcription request
func (m *Metrics) RecordTranscriptionEnd(success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.transcriptionStart.IsZero() {
		transcriptionLatency.Observe(time.Since(m.transcriptionStart).Seconds())
		m.transcriptionStart = time.Time{}
	}
	transcriptionRequests.WithLabelValues(statusLabel(success)).Inc()
}

// RecordAgentStart records the start of an agent-response request
func (m *Metrics) RecordAgentStart() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.agentStart = time.Now()
	m.mu.Unlock()
}

// RecordAgentEnd records the end of an agent-response request
func (m *Metrics) RecordAgentEnd(success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.agentStart.IsZero() {
		agentLatency.Observe(time.Since(m.agentStart).Seconds())
		m.agentStart = time.Time{}
	}
	agentRequests.WithLabelValues(statusLabel(success)).Inc()
	if !success {
		fallbackTurns.Inc()
	}
}

// RecordPresentation records a finished typing presentation
func (m *Metrics) RecordPresentation(fastForwarded bool) {
	if m == nil {
		return
	}
	finish := "natural"
	if fastForwarded {
		finish = "fast_forward"
	}
	presentationsTotal.WithLabelValues(finish).Inc()
}

// RecordUtterance records a finished speech utterance (completed, cancelled, error)
func (m *Metrics) RecordUtterance(outcome string) {
	if m == nil {
		return
	}
	utterancesTotal.WithLabelValues(outcome).Inc()
}

// RecordUpload records an attachment outcome (uploaded, failed, rejected)
func (m *Metrics) RecordUpload(outcome string) {
	if m == nil {
		return
	}
	uploadsTotal.WithLabelValues(outcome).Inc()
}

// RecordError records an error by taxonomy kind
func (m *Metrics) RecordError(kind, component string) {
	if m == nil {
		return
	}
	errorsTotal.WithLabelValues(kind, component).Inc()
}

// RecordAudioBytes records captured microphone bytes
func (m *Metrics) RecordAudioBytes(bytes int64) {
	if m == nil {
		return
	}
	audioBytesCaptured.Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
