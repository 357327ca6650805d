// Package circuitbreaker protects the WhatsApp API from cascade failures:
// after repeated send failures the circuit opens and dispatches fail fast
// (straight to FALLIDO) instead of waiting on a dead provider.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of the breaker.
//
//	Closed -> Open:      failure count reaches the threshold
//	Open -> HalfOpen:    recovery timeout expires
//	HalfOpen -> Closed:  the probe request succeeds
//	HalfOpen -> Open:    the probe request fails
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while requests are being rejected.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds breaker thresholds.
type Config struct {
	Name                string
	MaxFailures         int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// DefaultConfig returns the thresholds used for the WhatsApp channel.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxFailures:         5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// CircuitBreaker tracks consecutive failures against a downstream service.
type CircuitBreaker struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger

	state         State
	failureCount  int
	halfOpenInUse int
	openedAt      time.Time
}

// New creates a breaker in the closed state.
func New(config Config, logger *zap.Logger) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}

	return &CircuitBreaker{
		config: config,
		logger: logger,
		state:  StateClosed,
	}
}

// Allow reports whether a request may proceed, transitioning Open to
// HalfOpen once the recovery timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) < cb.config.RecoveryTimeout {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.halfOpenInUse = 1
		return true
	case StateHalfOpen:
		if cb.halfOpenInUse >= cb.config.HalfOpenMaxRequests {
			return false
		}
		cb.halfOpenInUse++
		return true
	default:
		return false
	}
}

// RecordSuccess resets the breaker after a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state != StateClosed {
		cb.setState(StateClosed)
	}
	cb.halfOpenInUse = 0
}

// RecordFailure counts a failed request, opening the circuit at the
// threshold. A failed half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failureCount >= cb.config.MaxFailures) {
		cb.setState(StateOpen)
		cb.openedAt = time.Now()
		cb.halfOpenInUse = 0
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	cb.logger.Info("circuit breaker state change",
		zap.String("breaker", cb.config.Name),
		zap.String("from", cb.state.String()),
		zap.String("to", next.String()),
	)
	cb.state = next
}
