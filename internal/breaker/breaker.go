// Package breaker guards outbound provider calls with circuit breaker
// semantics: after enough consecutive failures the circuit opens and calls
// are rejected without contacting the provider until a cool-down elapses.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0Reliance/maeple/internal/logging"
)

// State captures circuit breaker states.
type State int

const (
	// StateClosed indicates normal operation.
	StateClosed State = iota
	// StateOpen indicates the breaker is rejecting calls.
	StateOpen
	// StateHalfOpen indicates exactly one trial call is permitted.
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
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ErrCircuitOpen is returned when a call is rejected without being attempted.
var ErrCircuitOpen = errors.New("breaker: circuit open")

// Config controls thresholds for state transitions.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the circuit from closed to open.
	FailureThreshold int

	// CoolDown is the base open window. The effective window doubles on
	// each consecutive trip (a failed half-open trial) up to MaxCoolDown,
	// so a provider that keeps failing is probed less and less often.
	CoolDown time.Duration

	// MaxCoolDown caps the doubling.
	MaxCoolDown time.Duration

	// Now is the time source; overridable in tests.
	Now func() time.Time

	// OnStateChange, if set, receives every state transition.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the documented defaults: trip at 5 consecutive
// failures, 30 second base cool-down capped at 5 minutes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		MaxCoolDown:      5 * time.Minute,
	}
}

// Snapshot is a point-in-time view of breaker health, safe to serialize.
type Snapshot struct {
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	OpenUntil           *time.Time `json:"open_until,omitempty"`
}

// Breaker is a call-guarding state machine. State transitions are atomic
// with respect to concurrent callers: two simultaneous calls can never both
// hold the single half-open trial slot.
type Breaker struct {
	cfg Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	lastSuccessAt       time.Time
	openUntil           time.Time
	trips               int  // consecutive opens without an intervening close
	trialInFlight       bool // half-open trial slot
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultConfig().CoolDown
	}
	if cfg.MaxCoolDown <= 0 {
		cfg.MaxCoolDown = DefaultConfig().MaxCoolDown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Execute invokes op unless the circuit is open. The operation's own error
// is propagated unchanged on failure: the breaker observes, it does not
// swallow. When the circuit is open the call fails with ErrCircuitOpen
// without invoking op.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

// Do is the generic convenience form of Execute for operations returning a
// value.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}

// allow decides whether the caller may proceed, taking the half-open trial
// slot when applicable.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if b.cfg.Now().Before(b.openUntil) {
			return ErrCircuitOpen
		}
		// Cool-down elapsed: this caller becomes the single trial.
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return nil

	case StateHalfOpen:
		if b.trialInFlight {
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// record applies a call outcome. Cancellation counts as neither success nor
// failure (it says nothing about provider health) unless the cancellation
// was caused by a timeout, which counts as failure.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false

	switch classify(err) {
	case outcomeSuccess:
		b.consecutiveFailures = 0
		b.lastSuccessAt = b.cfg.Now()
		if b.state == StateHalfOpen {
			b.trips = 0
			b.transition(StateClosed)
		}

	case outcomeFailure:
		b.consecutiveFailures++
		b.lastFailureAt = b.cfg.Now()
		switch b.state {
		case StateHalfOpen:
			b.open()
		case StateClosed:
			if b.consecutiveFailures >= b.cfg.FailureThreshold {
				b.open()
			}
		}

	case outcomeNeutral:
		// The half-open trial slot was released above so another caller
		// can probe; state is otherwise unchanged.
	}
}

// open transitions to the open state and arms the cool-down window.
func (b *Breaker) open() {
	b.trips++
	window := b.cfg.CoolDown
	for i := 1; i < b.trips; i++ {
		window *= 2
		if window >= b.cfg.MaxCoolDown {
			window = b.cfg.MaxCoolDown
			break
		}
	}
	b.openUntil = b.cfg.Now().Add(window)
	b.transition(StateOpen)
	logging.Breaker("circuit opened for %v (consecutive_failures=%d, trips=%d)",
		window, b.consecutiveFailures, b.trips)
}

// transition changes state and notifies the observer. Caller holds the lock.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	logging.Breaker("state %s -> %s", from, to)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

// Snapshot returns the current health state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
	}
	if !b.lastFailureAt.IsZero() {
		t := b.lastFailureAt
		snap.LastFailureAt = &t
	}
	if !b.lastSuccessAt.IsZero() {
		t := b.lastSuccessAt
		snap.LastSuccessAt = &t
	}
	if b.state == StateOpen {
		t := b.openUntil
		snap.OpenUntil = &t
	}
	return snap
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeNeutral
)

func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeFailure
	case errors.Is(err, context.Canceled):
		return outcomeNeutral
	default:
		return outcomeFailure
	}
}
