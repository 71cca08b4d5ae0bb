package types

import "time"

// ConversionRequest is the body of POST /v1/convert.
type ConversionRequest struct {
	// Identity (set by auth middleware)
	RequestID string `json:"-"`
	KeyID     string `json:"-"`
	ClientID  string `json:"-"`

	Source    Descriptor      `json:"source"`
	Target    Descriptor      `json:"target"`
	Direction Direction       `json:"direction,omitempty"`
	Data      any             `json:"data"`
	Context   *AdapterContext `json:"context,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// HTTPRequest is the payload shape for HTTP@1.1 on the request path.
type HTTPRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// GRPCCall is the payload shape for gRPC@1.0 on the request path. Message
// holds protobuf wire bytes.
type GRPCCall struct {
	Service  string            `json:"service"`
	Method   string            `json:"method"`
	Message  []byte            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
