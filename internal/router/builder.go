package router

import (
	"container/heap"

	"github.com/af-corp/protobridge/internal/router/adapters"
	"github.com/af-corp/protobridge/internal/types"
)

const DefaultMaxExpansions = 10000

// ChainBuilder finds least-cost adapter chains over a Registry. Edge cost is
// 1 - CompatibilityScore; protocols are graph nodes identified by
// name@version.
type ChainBuilder struct {
	registry      *Registry
	maxExpansions int
	filter        func(adapters.Adapter) bool
	chainOpts     []ChainOption
}

type BuilderOption func(*ChainBuilder)

// WithMaxExpansions caps the number of frontier pops per search. A search
// that hits the cap reports no path. Values <= 0 are ignored.
func WithMaxExpansions(n int) BuilderOption {
	return func(b *ChainBuilder) {
		if n > 0 {
			b.maxExpansions = n
		}
	}
}

// WithEdgeFilter restricts the search to adapters for which keep returns true.
func WithEdgeFilter(keep func(adapters.Adapter) bool) BuilderOption {
	return func(b *ChainBuilder) { b.filter = keep }
}

// WithChainOptions applies opts to every chain the builder returns.
func WithChainOptions(opts ...ChainOption) BuilderOption {
	return func(b *ChainBuilder) { b.chainOpts = append(b.chainOpts, opts...) }
}

func NewChainBuilder(registry *Registry, opts ...BuilderOption) *ChainBuilder {
	b := &ChainBuilder{
		registry:      registry,
		maxExpansions: DefaultMaxExpansions,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// pathNode is one step of a partial path; paths share prefixes through prev.
type pathNode struct {
	prev    *pathNode
	adapter adapters.Adapter
	at      types.Descriptor
	cost    float64
	depth   int
}

func (n *pathNode) steps() []adapters.Adapter {
	out := make([]adapters.Adapter, n.depth)
	for cur := n; cur.prev != nil; cur = cur.prev {
		out[cur.depth-1] = cur.adapter
	}
	return out
}

type frontierItem struct {
	node *pathNode
	seq  int
}

// frontier is a min-heap on cost, ties broken by insertion order.
type frontier []frontierItem

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].node.cost != f[j].node.cost {
		return f[i].node.cost < f[j].node.cost
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(frontierItem)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

// BuildChain returns the least-cost chain from source to target, or false if
// no registered sequence of adapters connects them. When source and target
// are the same protocol the chain is empty.
func (b *ChainBuilder) BuildChain(source, target types.Descriptor) (*Chain, bool) {
	edges := b.index()

	best := map[string]float64{source.Key(): 0}
	f := &frontier{{node: &pathNode{at: source}}}
	seq := 1

	for pops := 0; f.Len() > 0; pops++ {
		if pops >= b.maxExpansions {
			return nil, false
		}
		cur := heap.Pop(f).(frontierItem).node

		if cur.at.Same(target) {
			return NewChain(cur.steps(), b.chainOpts...), true
		}
		// A cheaper path to this node was enqueued after this one.
		if cur.cost > best[cur.at.Key()] {
			continue
		}

		for _, a := range edges[cur.at.Key()] {
			next := a.Target()
			cost := cur.cost + EdgeCost(a)
			if prev, seen := best[next.Key()]; seen && cost >= prev {
				continue
			}
			best[next.Key()] = cost
			heap.Push(f, frontierItem{
				node: &pathNode{prev: cur, adapter: a, at: next, cost: cost, depth: cur.depth + 1},
				seq:  seq,
			})
			seq++
		}
	}
	return nil, false
}

// index groups one registry snapshot by source protocol, in insertion order.
func (b *ChainBuilder) index() map[string][]adapters.Adapter {
	edges := make(map[string][]adapters.Adapter)
	for _, a := range b.registry.Adapters() {
		if b.filter != nil && !b.filter(a) {
			continue
		}
		key := a.Source().Key()
		edges[key] = append(edges[key], a)
	}
	return edges
}
