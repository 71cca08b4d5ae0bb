package adapters

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/af-corp/protobridge/internal/types"
)

var (
	// ErrUnsupportedPayload is returned when an adapter receives data it
	// cannot interpret as its source protocol.
	ErrUnsupportedPayload = errors.New("unsupported payload")
	ErrEmptyMessage       = errors.New("empty message")
	ErrInvalidPath        = errors.New("invalid path")
)

// decodePayload accepts either a T, a *T, or any value whose JSON form
// decodes into T (the shape payloads take after crossing HTTP). Strict
// validation rejects unknown fields.
func decodePayload[T any](data any, actx *types.AdapterContext) (T, error) {
	var zero T
	switch v := data.(type) {
	case nil:
		return zero, fmt.Errorf("%w: nil payload, want %T", ErrUnsupportedPayload, zero)
	case T:
		return v, nil
	case *T:
		if v == nil {
			return zero, fmt.Errorf("%w: nil payload, want %T", ErrUnsupportedPayload, zero)
		}
		return *v, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if actx.IsStrict() {
		dec.DisallowUnknownFields()
	}
	var out T
	if err := dec.Decode(&out); err != nil {
		return zero, fmt.Errorf("%w: want %T: %v", ErrUnsupportedPayload, zero, err)
	}
	return out, nil
}

// textPayload accepts string or []byte.
func textPayload(data any) (string, error) {
	switch v := data.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case *string:
		if v != nil {
			return *v, nil
		}
	}
	return "", fmt.Errorf("%w: want text, got %T", ErrUnsupportedPayload, data)
}

// normalizeJSON reduces data to the generic JSON value space
// (map[string]any, []any, string, float64, bool, nil).
func normalizeJSON(data any) (any, error) {
	switch v := data.(type) {
	case nil, string, float64, bool:
		return v, nil
	case json.RawMessage:
		var out any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
		}
		return out, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
	}
	return out, nil
}

// applyHandler runs the named custom handler from the adapter context, if any.
func applyHandler(actx *types.AdapterContext, name string, data any) (any, error) {
	if actx == nil || actx.CustomHandlers == nil {
		return data, nil
	}
	h, ok := actx.CustomHandlers[name]
	if !ok || h == nil {
		return data, nil
	}
	return h(data)
}
