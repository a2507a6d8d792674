package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_streamer_active_sessions",
		Help: "Number of running capture sessions",
	})

	// Frame pipeline metrics
	framesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_streamer_frames_processed_total",
		Help: "Total number of audio frames run through the detector",
	})

	frameProcessingTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_streamer_frame_processing_seconds",
		Help:    "Time spent processing one frame",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.032, 0.064},
	})

	frameBudgetOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_streamer_frame_budget_overruns_total",
		Help: "Frames whose processing took longer than their playback duration",
	})

	noiseFloor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_streamer_noise_floor",
		Help: "Current ambient RMS estimate",
	})

	speechScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_streamer_speech_score",
		Help: "Current smoothed speech score",
	})

	speechEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_streamer_speech_events_total",
		Help: "Total number of activity state transitions",
	}, []string{"event"})

	// Segment metrics
	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_streamer_segments_total",
		Help: "Total number of finished segments",
	}, []string{"reason"}) // reason: "natural", "forced" or "flush"

	segmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_streamer_segment_duration_seconds",
		Help:    "Duration of finished segments in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 6, 8, 10},
	})

	// Transport metrics
	transportState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_streamer_transport_state",
		Help: "Uplink state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
	})

	reconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_streamer_reconnect_attempts_total",
		Help: "Total number of scheduled reconnect attempts",
	})

	droppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_streamer_dropped_messages_total",
		Help: "Outbound messages dropped because the uplink was not connected",
	}, []string{"kind"}) // kind: "audio" or "control"

	inboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_streamer_inbound_messages_total",
		Help: "Inbound messages routed, by kind",
	}, []string{"kind"})

	inboundParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_streamer_inbound_parse_errors_total",
		Help: "Inbound payloads that could not be parsed",
	})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_streamer_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_streamer_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "speech_streamer_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_streamer_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SessionStarted records the start of a session
func SessionStarted() {
	activeSessions.Inc()
}

// SessionEnded records the end of a session
func SessionEnded() {
	activeSessions.Dec()
}

// RecordFrame records one processed frame. A frame that took longer than
// its own playback duration counts as a budget overrun.
func RecordFrame(elapsed, budget time.Duration) {
	framesProcessed.Inc()
	frameProcessingTime.Observe(elapsed.Seconds())
	if budget > 0 && elapsed > budget {
		frameBudgetOverruns.Inc()
	}
}

// RecordDetectorState publishes the current noise floor and smoothed score
func RecordDetectorState(floor, score float64) {
	noiseFloor.Set(floor)
	speechScore.Set(score)
}

// RecordSpeechEvent counts an activity transition
func RecordSpeechEvent(event string) {
	speechEvents.WithLabelValues(event).Inc()
}

// RecordSegment records a finished segment
func RecordSegment(reason string, duration time.Duration) {
	segmentsTotal.WithLabelValues(reason).Inc()
	segmentDuration.Observe(duration.Seconds())
}

// SetTransportState publishes the uplink state
func SetTransportState(state int) {
	transportState.Set(float64(state))
}

// RecordReconnectAttempt counts a scheduled reconnect
func RecordReconnectAttempt() {
	reconnectAttempts.Inc()
}

// RecordDropped counts an outbound message dropped while disconnected
func RecordDropped(kind string) {
	droppedMessages.WithLabelValues(kind).Inc()
}

// RecordInbound counts an inbound message routed to an observer
func RecordInbound(kind string) {
	inboundMessages.WithLabelValues(kind).Inc()
}

// RecordInboundParseError counts a malformed inbound payload
func RecordInboundParseError() {
	inboundParseErrors.Inc()
}

// RecordAudioBytes records audio bytes processed
func RecordAudioBytes(direction string, bytes int) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
