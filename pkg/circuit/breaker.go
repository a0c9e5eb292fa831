// Package circuit implements the circuit breaker pattern for outbound
// dependencies. Breakers are looked up by endpoint name through a Registry.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents circuit breaker state.
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
		return "half_open"
	default:
		return "unknown"
	}
}

// OpenError is returned when a call is rejected because the breaker is open
// (or a half-open probe is already in flight). RetryAfter is the remaining
// cool-down.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %.1fs", e.Name, e.RetryAfter.Seconds())
}

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}

// Status is a snapshot of a breaker.
type Status struct {
	Name     string     `json:"name"`
	State    string     `json:"state"`
	Failures int        `json:"failures"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
}

// Breaker is a three-state gate in front of a named endpoint.
//
// Closed: calls pass; consecutive failures trip it open at the threshold.
// Open: calls fail fast until the cool-down elapses.
// Half-open: a single probe is allowed; success closes, failure reopens.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and cools down for cooldown before probing.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		state:     StateClosed,
		now:       time.Now,
	}
}

// Execute runs fn under the breaker. It returns an *OpenError without calling
// fn when the breaker rejects the call; otherwise it returns fn's error.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn()
	b.after(err == nil)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		retryAfter := b.openedAt.Add(b.cooldown).Sub(b.now())
		if retryAfter > 0 {
			return &OpenError{Name: b.name, RetryAfter: retryAfter}
		}
		// Cool-down elapsed: this call becomes the half-open probe.
		b.state = StateHalfOpen
		b.probing = true
		return nil

	case StateHalfOpen:
		if b.probing {
			return &OpenError{Name: b.name, RetryAfter: 0}
		}
		b.probing = true
		return nil
	}

	return &OpenError{Name: b.name}
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}

	case StateHalfOpen:
		b.probing = false
		if success {
			b.state = StateClosed
			b.failures = 0
			return
		}
		b.trip()
	}
}

// trip moves to open and restarts the cool-down. Caller holds the lock.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.probing = false
}

// Reset forces the breaker closed and clears counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probing = false
	b.openedAt = time.Time{}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns a snapshot of the breaker.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Status{
		Name:     b.name,
		State:    b.state.String(),
		Failures: b.failures,
	}
	if !b.openedAt.IsZero() {
		openedAt := b.openedAt
		st.OpenedAt = &openedAt
	}
	return st
}

// Registry hands out one breaker per endpoint name.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
}

// NewRegistry creates a registry whose breakers share the given defaults.
func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Get returns the breaker for name, creating it on first use. Repeated calls
// with the same name return the same instance.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(name, r.threshold, r.cooldown)
		r.breakers[name] = b
	}
	return b
}
