package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Descriptor identifies a data-interchange protocol. Two descriptors name the
// same protocol iff Name and Version match exactly; Capabilities and Metadata
// are informational.
type Descriptor struct {
	Name         string         `json:"name" yaml:"name"`
	Version      string         `json:"version" yaml:"version"`
	Capabilities []string       `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Key returns the graph identity of the descriptor: name@version.
func (d Descriptor) Key() string {
	return d.Name + "@" + d.Version
}

// Same reports whether d and other identify the same protocol.
func (d Descriptor) Same(other Descriptor) bool {
	return d.Name == other.Name && d.Version == other.Version
}

// HasCapability reports whether the descriptor declares the given tag.
func (d Descriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

func (d Descriptor) String() string { return d.Key() }

// UnmarshalJSON accepts either the object form or a "name@version" string.
func (d *Descriptor) UnmarshalJSON(b []byte) error {
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		parsed, err := ParseDescriptor(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	type plain Descriptor
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = Descriptor(p)
	return nil
}

// EdgeKey is the registry key for a directed conversion between two protocols.
func EdgeKey(source, target Descriptor) string {
	return source.Key() + "->" + target.Key()
}

// ParseDescriptor parses "name@version" into a bare descriptor.
func ParseDescriptor(s string) (Descriptor, error) {
	name, version, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || name == "" || version == "" {
		return Descriptor{}, fmt.Errorf("invalid protocol %q: want name@version", s)
	}
	return Descriptor{Name: name, Version: version}, nil
}

// Direction is advisory: adapters may alter behavior based on it.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

// ParseDirection defaults to forward for the empty string.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case "", DirectionForward:
		return DirectionForward, true
	case DirectionReverse:
		return DirectionReverse, true
	default:
		return "", false
	}
}

type ValidationLevel string

const (
	ValidationStrict  ValidationLevel = "strict"
	ValidationLenient ValidationLevel = "lenient"
)

// AdapterContext configures a single conversion. The router passes it through
// to every adapter untouched; it may be nil.
type AdapterContext struct {
	Direction           Direction                        `json:"direction"`
	PreserveMetadata    bool                             `json:"preserve_metadata"`
	ValidationLevel     ValidationLevel                  `json:"validation_level"`
	TransformationRules map[string]any                   `json:"transformation_rules,omitempty"`
	CustomHandlers      map[string]func(any) (any, error) `json:"-"`
}

// IsStrict treats a nil context as strict.
func (c *AdapterContext) IsStrict() bool {
	return c == nil || c.ValidationLevel != ValidationLenient
}

// Rule returns a transformation rule by name.
func (c *AdapterContext) Rule(name string) (any, bool) {
	if c == nil || c.TransformationRules == nil {
		return nil, false
	}
	v, ok := c.TransformationRules[name]
	return v, ok
}
