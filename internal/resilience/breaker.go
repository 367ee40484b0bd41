// Package resilience keeps transcription available when a speech backend
// degrades.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open).
// [Chain] composes several speech-to-text backends behind one
// [asr.Transcriber]: every backend gets its own breaker, and a failing
// primary is bypassed in favour of the next healthy fallback.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] when the breaker is open
// and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a single probe call through. Its outcome decides
	// whether the breaker closes or re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before admitting a
	// probe. Default: 30s.
	ResetTimeout time.Duration
}

// Breaker implements the three-state circuit breaker pattern with a single
// probe in the half-open state. It is safe for concurrent use.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a [Breaker]. Zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		state:        StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state only one probe
// may be in flight; concurrent calls are rejected until it settles.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err)
	return err
}

// admit decides whether a call may proceed, performing the open to half-open
// transition once the reset timeout has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.resetTimeout {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probing = false
		slog.Info("circuit breaker half-open", "name", b.name)

	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
	}

	if b.state == StateHalfOpen {
		b.probing = true
	}
	return nil
}

// settle records the call outcome.
func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probing = false
		if err != nil {
			b.state = StateOpen
			b.openedAt = time.Now()
			b.failures = b.maxFailures
			slog.Warn("circuit breaker re-opened by failed probe", "name", b.name)
			return
		}
		b.state = StateClosed
		b.failures = 0
		slog.Info("circuit breaker closed after successful probe", "name", b.name)
		return
	}

	if err != nil {
		b.failures++
		b.openedAt = time.Now()
		if b.state == StateClosed && b.failures >= b.maxFailures {
			b.state = StateOpen
			slog.Warn("circuit breaker opened",
				"name", b.name,
				"consecutive_failures", b.failures)
		}
		return
	}
	b.failures = 0
}

// State returns the current [State]. If the breaker is open and the reset
// timeout has elapsed, [StateHalfOpen] is reported; the actual transition
// happens on the next [Breaker.Execute] call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probing = false
	slog.Info("circuit breaker manually reset", "name", b.name)
}
