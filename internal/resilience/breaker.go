// Package resilience guards remote feature sources with per-layer circuit
// breakers and transient-error retries.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is the position of a Breaker.
type State int

const (
	// Closed lets every call through.
	Closed State = iota
	// Open rejects calls until the cool-down has elapsed.
	Open
	// HalfOpen lets probe calls through to test whether the source recovered.
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

// ErrOpen is returned without calling the source while its breaker is open.
var ErrOpen = eris.New("resilience: source unavailable, breaker open")

// BreakerConfig tunes a Breaker. Zero values take the defaults.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Probes is the number of successful half-open calls needed to close.
	Probes int
	// Counts decides whether an error counts as a failure. Defaults to
	// IsTransient so that bad requests do not open the breaker.
	Counts func(err error) bool
	// OnChange is called with the breaker name on every transition, under
	// the breaker's lock.
	OnChange func(name string, from, to State)
}

// DefaultBreakerConfig returns 5 failures, a 30s cool-down and one probe.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		Probes:    1,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.Probes <= 0 {
		c.Probes = d.Probes
	}
	if c.Counts == nil {
		c.Counts = IsTransient
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker for one feature source.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	probes   int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{
		name: name,
		cfg:  cfg.withDefaults(),
		now:  time.Now,
	}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Allow reports whether a call may proceed, moving an expired open breaker
// to half-open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
		return eris.Wrapf(ErrOpen, "resilience: %s", b.name)
	}
	b.setState(HalfOpen)
	b.probes = 0
	return nil
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !b.cfg.Counts(err) {
		switch b.state {
		case HalfOpen:
			b.probes++
			if b.probes >= b.cfg.Probes {
				b.failures = 0
				b.probes = 0
				b.setState(Closed)
			}
		case Closed:
			b.failures = 0
		}
		return
	}

	b.failures++
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		if b.failures >= b.cfg.Threshold {
			b.trip()
		}
	}
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probes = 0
	b.setState(Closed)
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.probes = 0
	b.setState(Open)
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnChange != nil {
		b.cfg.OnChange(b.name, from, to)
	}
}

// Breakers lazily creates one Breaker per name with a shared config.
type Breakers struct {
	cfg BreakerConfig

	mu  sync.RWMutex
	set map[string]*Breaker
}

// NewBreakers creates an empty registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, set: make(map[string]*Breaker)}
}

// For returns the breaker for name, creating it on first use.
func (r *Breakers) For(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.set[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.set[name]; ok {
		return b
	}
	b = NewBreaker(name, r.cfg)
	r.set[name] = b
	return b
}

// States returns a snapshot of every breaker's state keyed by name.
func (r *Breakers) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.set))
	for name, b := range r.set {
		out[name] = b.State()
	}
	return out
}
