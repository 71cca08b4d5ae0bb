package types

// ConversionResponse is returned by POST /v1/convert.
type ConversionResponse struct {
	RequestID string    `json:"request_id"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Direction Direction `json:"direction"`
	Hops      []string  `json:"hops"`
	Cost      float64   `json:"cost"`
	Data      any       `json:"data"`
}

// RouteResponse describes a resolved chain without executing it.
type RouteResponse struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Hops   []string `json:"hops"`
	Cost   float64  `json:"cost"`
}

// AdapterInfo describes one registered edge.
type AdapterInfo struct {
	Edge         string   `json:"edge"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	Score        float64  `json:"score"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// GRPCResponse is the payload shape for gRPC@1.0 on the response path.
type GRPCResponse struct {
	Response []byte         `json:"response"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HTTPResponse is the payload shape for HTTP@1.1 on the response path.
type HTTPResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}
