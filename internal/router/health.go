package router

import (
	"sort"
	"sync"
	"time"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/router/adapters"
	"github.com/af-corp/protobridge/internal/types"
)

// HealthTracker keeps one circuit breaker per adapter edge. Edges whose
// breaker is open are excluded from routing through EdgeFilter.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
	now                   func() time.Time
	onChange              func(edge string, from, to CircuitState)
}

// NewHealthTracker creates a health tracker with the given circuit breaker config.
func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
		now:                   time.Now,
	}
}

// NewHealthTrackerFromConfig returns nil when the circuit breaker is disabled.
// A nil tracker reports every edge as available.
func NewHealthTrackerFromConfig(cfg config.CircuitBreakerConfig) *HealthTracker {
	if !cfg.Enabled {
		return nil
	}
	return NewHealthTracker(cfg.FailureThreshold, cfg.RecoveryProbeInterval)
}

// OnStateChange registers a callback for breaker transitions. It must be set
// before the tracker is used.
func (ht *HealthTracker) OnStateChange(fn func(edge string, from, to CircuitState)) {
	if ht != nil {
		ht.onChange = fn
	}
}

// GetBreaker returns (or lazily creates) the circuit breaker for an edge.
func (ht *HealthTracker) GetBreaker(edge string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[edge]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[edge]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	cb.now = ht.now
	if ht.onChange != nil {
		cb.onChange = func(from, to CircuitState) { ht.onChange(edge, from, to) }
	}
	ht.breakers[edge] = cb
	return cb
}

// IsAvailable returns true if the edge's circuit breaker allows routing.
func (ht *HealthTracker) IsAvailable(edge string) bool {
	if ht == nil {
		return true
	}
	ht.mu.RLock()
	cb, ok := ht.breakers[edge]
	ht.mu.RUnlock()
	return !ok || cb.Allow()
}

func (ht *HealthTracker) RecordSuccess(edge string) {
	if ht != nil {
		ht.GetBreaker(edge).RecordSuccess()
	}
}

func (ht *HealthTracker) RecordFailure(edge string) {
	if ht != nil {
		ht.GetBreaker(edge).RecordFailure()
	}
}

// EdgeFilter is a ChainBuilder edge filter excluding open circuits.
func (ht *HealthTracker) EdgeFilter(a adapters.Adapter) bool {
	return ht.IsAvailable(types.EdgeKey(a.Source(), a.Target()))
}

// EdgeStatus is a point-in-time view of one edge's breaker.
type EdgeStatus struct {
	Edge        string     `json:"edge"`
	State       string     `json:"state"`
	Failures    int        `json:"failures"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
}

// Snapshot returns the status of every tracked edge, sorted by edge key.
func (ht *HealthTracker) Snapshot() []EdgeStatus {
	if ht == nil {
		return nil
	}
	ht.mu.RLock()
	out := make([]EdgeStatus, 0, len(ht.breakers))
	for edge, cb := range ht.breakers {
		status := EdgeStatus{Edge: edge, State: cb.State().String(), Failures: cb.Failures()}
		if last := cb.LastFailure(); !last.IsZero() {
			status.LastFailure = &last
		}
		out = append(out, status)
	}
	ht.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Edge < out[j].Edge })
	return out
}
