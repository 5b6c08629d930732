// Package resilience provides a circuit breaker for the recording store.
//
// The collector keeps accepting gameplay traffic even when its storage
// backend degrades: a [Breaker] in front of the store fails fast instead of
// letting every upload block on a dead database. The breaker is a classic
// three-state machine (closed → open → half-open) and is safe for concurrent
// use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards all calls. This is the normal state.
	Closed State = iota

	// Open rejects calls with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
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

// Config tunes a [Breaker]. Zero fields take defaults.
type Config struct {
	// Name labels the breaker in log messages.
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default: 5.
	Trip int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is how many half-open calls must succeed to close the breaker.
	// Default: 3.
	Probes int
}

// Option configures a [Breaker] beyond its [Config].
type Option func(*Breaker)

// WithClock replaces the wall clock. Tests use it to step through the
// cooldown without sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	probes   int
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  int
	probeOK  int
}

// New creates a [Breaker] from cfg.
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	b := &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
		probes:   cfg.Probes,
		now:      time.Now,
		state:    Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do runs fn if the breaker allows it. While open it returns [ErrOpen]
// without calling fn; in half-open only the probe budget gets through.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probing = 0
		b.probeOK = 0
		slog.Info("resilience: breaker half-open", "name", b.name)
	case HalfOpen:
		if b.probing >= b.probes {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probe := b.state == HalfOpen
	if probe {
		b.probing++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.fail(probe)
	} else {
		b.succeed(probe)
	}
	return err
}

// fail updates counters after a failed call. Caller holds b.mu.
func (b *Breaker) fail(probe bool) {
	if probe {
		b.state = Open
		b.openedAt = b.now()
		b.failures = b.trip
		slog.Warn("resilience: breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.state == Closed && b.failures >= b.trip {
		b.state = Open
		b.openedAt = b.now()
		slog.Warn("resilience: breaker opened",
			"name", b.name, "consecutive_failures", b.failures)
	}
}

// succeed updates counters after a successful call. Caller holds b.mu.
func (b *Breaker) succeed(probe bool) {
	if probe {
		b.probeOK++
		if b.probeOK >= b.probes {
			b.state = Closed
			b.failures = 0
			slog.Info("resilience: breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the current state. An open breaker whose cooldown has
// elapsed reports [HalfOpen]; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probing = 0
	b.probeOK = 0
	slog.Info("resilience: breaker reset", "name", b.name)
}
