package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the circuit rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Requests fail immediately
	StateHalfOpen                     // Probing whether the backend recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// StateChangeFunc is called, outside the breaker lock, after every transition.
type StateChangeFunc func(name string, from, to CircuitState)

// CircuitBreaker guards calls to a flaky backend
type CircuitBreaker struct {
	name         string
	maxFailures  int           // consecutive failures before opening
	resetTimeout time.Duration // time spent open before probing
	halfOpenMax  int           // trial calls allowed, and successes needed, in half-open
	onChange     StateChangeFunc

	mu                sync.Mutex
	state             CircuitState
	failureCount      int
	halfOpenCount     int
	successCount      int
	lastFailTime      time.Time
	requestCount      int64
	failureCountTotal int64
}

// NewCircuitBreaker creates a new circuit breaker. onChange may be nil.
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration, onChange StateChangeFunc) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		onChange:     onChange,
		state:        StateClosed,
	}
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Call executes fn with circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.RecordResult(err == nil)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	from := cb.state
	cb.refresh(time.Now())

	allowed := false
	switch cb.state {
	case StateClosed:
		allowed = true
	case StateHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			allowed = true
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

// refresh moves an open circuit to half-open once the reset timeout has
// elapsed. Must be called with mu held.
func (cb *CircuitBreaker) refresh(now time.Time) {
	if cb.state == StateOpen && now.Sub(cb.lastFailTime) >= cb.resetTimeout {
		cb.state = StateHalfOpen
		cb.halfOpenCount = 0
		cb.successCount = 0
	}
}

// RecordResult records the outcome of a request made outside Call
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	from := cb.state
	cb.refresh(time.Now())
	cb.requestCount++
	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.halfOpenCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCountTotal++
	cb.lastFailTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}

	case StateHalfOpen:
		// Any failure while probing reopens the circuit
		cb.state = StateOpen
		cb.halfOpenCount = 0
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if from != to && cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() (state CircuitState, requestCount, failureCount int64, failureRate float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state = cb.state
	requestCount = cb.requestCount
	failureCount = cb.failureCountTotal

	if requestCount > 0 {
		failureRate = float64(failureCount) / float64(requestCount) * 100.0
	}

	return
}

// Reset closes the circuit and clears its statistics
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.halfOpenCount = 0
	cb.successCount = 0
	cb.requestCount = 0
	cb.failureCountTotal = 0
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}
