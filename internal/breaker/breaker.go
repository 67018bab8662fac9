// Package breaker provides a per-provider circuit breaker that stops calling a
// repeatedly failing LLM provider for a cooldown period.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen matches every *OpenError.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the breaker's position in its state machine.
type State int32

const (
	// Closed lets calls through and counts failures.
	Closed State = iota
	// Open rejects calls until the recovery timeout elapses.
	Open
	// HalfOpen admits a single trial call.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError is returned when a call is rejected without being attempted.
type OpenError struct {
	Provider string
	State    State
	// RetryIn is the time left before a trial call will be admitted.
	RetryIn time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: circuit breaker %s (retry in %s)", e.Provider, e.State, e.RetryIn.Round(time.Millisecond))
}

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }

// Config controls when a breaker opens and how long it stays open.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold int `yaml:"failure_threshold"`

	// RecoveryTimeout is how long the breaker stays open before admitting a
	// trial call.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`

	// Window bounds how far apart counted failures may be. Zero means
	// failures only reset on success.
	Window time.Duration `yaml:"window"`
}

// DefaultConfig returns the standard breaker settings.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		Window:           time.Minute,
	}
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// Breaker guards calls to one provider. It is safe for concurrent use.
type Breaker struct {
	name   string
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	windowStart time.Time
	openedAt    time.Time
	trial       bool
}

// New creates a closed breaker for the named provider.
func New(name string, cfg Config, opts ...Option) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the provider name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker whose recovery
// timeout has elapsed moves to HalfOpen and admits exactly one trial; every
// other caller is refused until that trial's result is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			return false
		}
		b.transition(HalfOpen)
		b.trial = true
		return true
	case HalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	}
	return false
}

// RecordResult reports the outcome of a call admitted by Allow.
func (b *Breaker) RecordResult(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if success {
			b.failures = 0
			return
		}
		now := b.now()
		if b.failures > 0 && b.cfg.Window > 0 && now.Sub(b.windowStart) > b.cfg.Window {
			b.failures = 0
		}
		if b.failures == 0 {
			b.windowStart = now
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case HalfOpen:
		b.trial = false
		if success {
			b.failures = 0
			b.transition(Closed)
			return
		}
		b.open()
	case Open:
		// Late result from a call admitted before the breaker opened.
	}
}

// Release returns an admitted call without recording an outcome, for calls
// abandoned because the caller's context ended.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.trial = false
	}
}

// Trip opens the breaker immediately, for failures that will not clear on
// their own such as a revoked key.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
	if b.state == Open {
		return
	}
	b.open()
}

// OpenError describes a refused call.
func (b *Breaker) OpenError() *OpenError {
	b.mu.Lock()
	defer b.mu.Unlock()
	var retryIn time.Duration
	if b.state == Open {
		retryIn = max(b.cfg.RecoveryTimeout-b.now().Sub(b.openedAt), 0)
	}
	return &OpenError{Provider: b.name, State: b.state, RetryIn: retryIn}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(Open)
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.logger.Info("circuit breaker transition",
		"provider", b.name,
		"from", from.String(),
		"to", to.String(),
		"failures", b.failures,
	)
}

// Guard runs fn through b. A refused call returns *OpenError without
// invoking fn. A failure caused by ctx ending is not counted.
func Guard(ctx context.Context, b *Breaker, fn func(context.Context) error) error {
	if !b.Allow() {
		return b.OpenError()
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordResult(true)
	case ctx.Err() != nil:
		b.Release()
	default:
		b.RecordResult(false)
	}
	return err
}
