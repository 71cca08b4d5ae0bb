package router

import (
	"context"
	"math"
	"time"

	"github.com/af-corp/protobridge/internal/router/adapters"
	"github.com/af-corp/protobridge/internal/types"
)

// StepObserver is notified after each adapter invocation in a chain. It must
// not retain data; it cannot alter the chain's result.
type StepObserver func(ctx context.Context, a adapters.Adapter, dir types.Direction, elapsed time.Duration, err error)

// Chain is an ordered sequence of adapters where each adapter's target is
// the next adapter's source. A Chain is immutable once built.
type Chain struct {
	adapters []adapters.Adapter
	observer StepObserver
}

type ChainOption func(*Chain)

// WithObserver attaches a per-step observer.
func WithObserver(o StepObserver) ChainOption {
	return func(c *Chain) { c.observer = o }
}

func NewChain(as []adapters.Adapter, opts ...ChainOption) *Chain {
	c := &Chain{adapters: append([]adapters.Adapter(nil), as...)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// With returns a copy of the chain using opts.
func (c *Chain) With(opts ...ChainOption) *Chain {
	out := &Chain{adapters: c.adapters, observer: c.observer}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// Adapters returns a copy of the chain's adapters in order.
func (c *Chain) Adapters() []adapters.Adapter {
	return append([]adapters.Adapter(nil), c.adapters...)
}

func (c *Chain) Len() int { return len(c.adapters) }

// Source returns the first adapter's source; false for an empty chain.
func (c *Chain) Source() (types.Descriptor, bool) {
	if len(c.adapters) == 0 {
		return types.Descriptor{}, false
	}
	return c.adapters[0].Source(), true
}

// Target returns the last adapter's target; false for an empty chain.
func (c *Chain) Target() (types.Descriptor, bool) {
	if len(c.adapters) == 0 {
		return types.Descriptor{}, false
	}
	return c.adapters[len(c.adapters)-1].Target(), true
}

// Cost is the sum of edge costs along the chain.
func (c *Chain) Cost() float64 {
	var total float64
	for _, a := range c.adapters {
		total += EdgeCost(a)
	}
	return total
}

// Hops returns the edge key of each step.
func (c *Chain) Hops() []string {
	hops := make([]string, len(c.adapters))
	for i, a := range c.adapters {
		hops[i] = types.EdgeKey(a.Source(), a.Target())
	}
	return hops
}

// Adapt runs data through each adapter's Adapt in order. The first error is
// returned as-is and stops the chain. An empty chain returns data unchanged.
func (c *Chain) Adapt(ctx context.Context, data any, actx *types.AdapterContext) (any, error) {
	current := data
	for _, a := range c.adapters {
		start := time.Now()
		next, err := a.Adapt(ctx, current, actx)
		c.observe(ctx, a, types.DirectionForward, start, err)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// Reverse runs data through each adapter's Reverse, last adapter first.
func (c *Chain) Reverse(ctx context.Context, data any, actx *types.AdapterContext) (any, error) {
	current := data
	for i := len(c.adapters) - 1; i >= 0; i-- {
		a := c.adapters[i]
		start := time.Now()
		next, err := a.Reverse(ctx, current, actx)
		c.observe(ctx, a, types.DirectionReverse, start, err)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

func (c *Chain) observe(ctx context.Context, a adapters.Adapter, dir types.Direction, start time.Time, err error) {
	if c.observer != nil {
		c.observer(ctx, a, dir, time.Since(start), err)
	}
}

// EdgeCost is 1 minus the adapter's score clamped to [0,1]. A NaN score
// costs 1.
func EdgeCost(a adapters.Adapter) float64 {
	s := a.CompatibilityScore()
	switch {
	case math.IsNaN(s) || s < 0:
		s = 0
	case s > 1:
		s = 1
	}
	return 1 - s
}
