// Package resilience provides per-source circuit breakers and retry with
// backoff for the hearing connectors.
package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the source is usable.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the source is skipped until its recovery window ends.
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures that opens the circuit. Default: 5.
	FailureThreshold int

	// RecoveryWindow is how long an opened circuit stays open. Default: 1h.
	RecoveryWindow time.Duration

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(source string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the default threshold and window.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryWindow:   time.Hour,
	}
}

// CircuitBreaker guards a single source. A success resets the failure
// count but never ends a recovery window early: once opened, the circuit
// stays open until the window has elapsed.
type CircuitBreaker struct {
	source string
	cfg    CircuitBreakerConfig
	mu     sync.Mutex

	failures      int
	disabledUntil time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker for source.
func NewCircuitBreaker(source string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = time.Hour
	}
	return &CircuitBreaker{
		source:  source,
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// Source returns the name of the guarded source.
func (cb *CircuitBreaker) Source() string {
	return cb.source
}

// Allow reports whether the source is usable right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.usableLocked(cb.nowFunc())
}

// Tripped reports whether the source is currently disabled.
func (cb *CircuitBreaker) Tripped() bool {
	return !cb.Allow()
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	if cb.Allow() {
		return CircuitClosed
	}
	return CircuitOpen
}

// RecordFailure counts a failed call. Reaching the threshold opens the
// circuit for the recovery window.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowFunc()
	cb.expireLocked(now)
	cb.failures++

	if cb.failures >= cb.cfg.FailureThreshold && cb.disabledUntil.IsZero() {
		cb.disabledUntil = now.Add(cb.cfg.RecoveryWindow)
		zap.L().Warn("circuit breaker activated",
			zap.String("source", cb.source),
			zap.Int("failures", cb.failures),
			zap.Time("disabled_until", cb.disabledUntil),
		)
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.source, CircuitClosed, CircuitOpen)
		}
	}
}

// RecordSuccess resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expireLocked(cb.nowFunc())
	cb.failures = 0
}

// Execute runs fn unless the circuit is open. Any error from fn counts as a
// failure, including a context deadline.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(ctx); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !cb.Allow() {
		return zero, ErrCircuitOpen
	}
	val, err := fn(ctx)
	if err != nil {
		cb.RecordFailure()
		return zero, err
	}
	cb.RecordSuccess()
	return val, nil
}

// Reset forces the circuit closed. Intended for operators and tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	wasOpen := !cb.usableLocked(cb.nowFunc())
	cb.failures = 0
	cb.disabledUntil = time.Time{}
	if wasOpen && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.source, CircuitOpen, CircuitClosed)
	}
}

// BreakerSnapshot is a point-in-time view of one breaker for status reports.
type BreakerSnapshot struct {
	Source        string     `json:"source"`
	State         string     `json:"state"`
	Failures      int        `json:"failures"`
	Threshold     int        `json:"threshold"`
	DisabledUntil *time.Time `json:"disabled_until,omitempty"`
}

// Snapshot returns the breaker's current counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowFunc()
	cb.expireLocked(now)
	s := BreakerSnapshot{
		Source:    cb.source,
		State:     CircuitClosed.String(),
		Failures:  cb.failures,
		Threshold: cb.cfg.FailureThreshold,
	}
	if !cb.usableLocked(now) {
		s.State = CircuitOpen.String()
	}
	if !cb.disabledUntil.IsZero() {
		until := cb.disabledUntil
		s.DisabledUntil = &until
	}
	return s
}

func (cb *CircuitBreaker) usableLocked(now time.Time) bool {
	cb.expireLocked(now)
	windowClear := cb.disabledUntil.IsZero() || !now.Before(cb.disabledUntil)
	return windowClear && cb.failures < cb.cfg.FailureThreshold
}

// expireLocked closes a circuit whose recovery window has elapsed.
func (cb *CircuitBreaker) expireLocked(now time.Time) {
	if cb.disabledUntil.IsZero() || now.Before(cb.disabledUntil) {
		return
	}
	cb.disabledUntil = time.Time{}
	cb.failures = 0
	zap.L().Info("circuit breaker recovered", zap.String("source", cb.source))
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.source, CircuitOpen, CircuitClosed)
	}
}

// ServiceBreakers manages circuit breakers for multiple sources.
type ServiceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
	nowFunc  func() time.Time
}

// NewServiceBreakers creates a registry of per-source circuit breakers.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// WithClock sets the time source of every breaker, existing and future.
func (sb *ServiceBreakers) WithClock(now func() time.Time) *ServiceBreakers {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.nowFunc = now
	for _, cb := range sb.breakers {
		cb.mu.Lock()
		cb.nowFunc = now
		cb.mu.Unlock()
	}
	return sb
}

// Get returns the circuit breaker for the named source, creating one if needed.
func (sb *ServiceBreakers) Get(source string) *CircuitBreaker {
	sb.mu.RLock()
	cb, ok := sb.breakers[source]
	sb.mu.RUnlock()
	if ok {
		return cb
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if cb, ok = sb.breakers[source]; ok {
		return cb
	}
	cb = NewCircuitBreaker(source, sb.cfg)
	cb.nowFunc = sb.nowFunc
	sb.breakers[source] = cb
	return cb
}

// States returns a snapshot of all circuit breakers, ordered by source.
func (sb *ServiceBreakers) States() []BreakerSnapshot {
	sb.mu.RLock()
	names := make([]string, 0, len(sb.breakers))
	for name := range sb.breakers {
		names = append(names, name)
	}
	sb.mu.RUnlock()

	sort.Strings(names)
	out := make([]BreakerSnapshot, 0, len(names))
	for _, name := range names {
		out = append(out, sb.Get(name).Snapshot())
	}
	return out
}
