package adapters

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/types"
)

// Adapter converts payloads along one directed edge of the protocol graph.
// Payloads are opaque to the router; each adapter documents the shapes it
// accepts and produces.
type Adapter interface {
	Source() types.Descriptor
	Target() types.Descriptor
	Adapt(ctx context.Context, data any, actx *types.AdapterContext) (any, error)
	Reverse(ctx context.Context, data any, actx *types.AdapterContext) (any, error)
	// CanHandle is a secondary matcher consulted by Registry.FindAdapter when
	// no adapter is registered under the exact edge key.
	CanHandle(source, target types.Descriptor) bool
	// CompatibilityScore is expected in [0,1]; higher means less lossy.
	CompatibilityScore() float64
}

// Protocol descriptors for the built-in converters.
var (
	JSON = types.Descriptor{Name: "JSON", Version: "1.0", Capabilities: []string{"Nested", "Arrays"}}
	XML  = types.Descriptor{
		Name:         "XML",
		Version:      "1.0",
		Capabilities: []string{"Namespaces", "Attributes"},
		Metadata:     map[string]any{"namespace": "http://example.com/protocol"},
	}
	CSV  = types.Descriptor{Name: "CSV", Version: "1.0", Capabilities: []string{"Delimited"}}
	GRPC = types.Descriptor{Name: "gRPC", Version: "1.0", Capabilities: []string{"Streaming", "Protobuf"}}
	HTTP = types.Descriptor{Name: "HTTP", Version: "1.1", Capabilities: []string{"REST", "JSON"}}
)

// edge carries the descriptors and score shared by every built-in converter.
type edge struct {
	source types.Descriptor
	target types.Descriptor
	score  float64
}

func newEdge(source, target types.Descriptor, score float64, cfg config.AdapterConfig) edge {
	if cfg.SourceVersion != "" {
		source.Version = cfg.SourceVersion
	}
	if cfg.TargetVersion != "" {
		target.Version = cfg.TargetVersion
	}
	if cfg.Score != nil {
		score = *cfg.Score
	}
	return edge{source: source, target: target, score: score}
}

func (e edge) Source() types.Descriptor { return e.source }

func (e edge) Target() types.Descriptor { return e.target }

func (e edge) CompatibilityScore() float64 { return e.score }

// CanHandle matches on protocol names only, so a converter also serves other
// versions of the same pair when nothing more specific is registered.
func (e edge) CanHandle(source, target types.Descriptor) bool {
	return source.Name == e.source.Name && target.Name == e.target.Name
}

// Factory builds an adapter from its adapters.yaml entry.
type Factory func(cfg config.AdapterConfig) (Adapter, error)

var factories = map[string]Factory{
	"csv-json":  func(cfg config.AdapterConfig) (Adapter, error) { return NewCSVToJSON(cfg) },
	"grpc-json": func(cfg config.AdapterConfig) (Adapter, error) { return NewGRPCToJSON(cfg), nil },
	"http-grpc": func(cfg config.AdapterConfig) (Adapter, error) { return NewHTTPToGRPC(cfg), nil },
	"json-xml":  func(cfg config.AdapterConfig) (Adapter, error) { return NewJSONToXML(cfg), nil },
}

// New constructs the adapter named by cfg.Type.
func New(cfg config.AdapterConfig) (Adapter, error) {
	f, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown adapter type %q (known: %s)", cfg.Type, strings.Join(Types(), ", "))
	}
	if cfg.Score != nil && (math.IsNaN(*cfg.Score) || *cfg.Score < 0 || *cfg.Score > 1) {
		return nil, fmt.Errorf("adapter %s: score %v outside [0,1]", cfg.Type, *cfg.Score)
	}
	return f(cfg)
}

// Types lists the registered adapter types in sorted order.
func Types() []string {
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
