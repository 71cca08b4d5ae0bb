package types

import (
	"encoding/json"
	"testing"
)

func TestDescriptorSame(t *testing.T) {
	tests := []struct {
		a, b Descriptor
		same bool
	}{
		{Descriptor{Name: "JSON", Version: "1.0"}, Descriptor{Name: "JSON", Version: "1.0"}, true},
		{Descriptor{Name: "JSON", Version: "1.0", Capabilities: []string{"Nested"}}, Descriptor{Name: "JSON", Version: "1.0", Metadata: map[string]any{"x": 1}}, true},
		{Descriptor{Name: "JSON", Version: "1.0"}, Descriptor{Name: "JSON", Version: "2.0"}, false},
		{Descriptor{Name: "JSON", Version: "1.0"}, Descriptor{Name: "json", Version: "1.0"}, false},
	}

	for _, tt := range tests {
		if got := tt.a.Same(tt.b); got != tt.same {
			t.Errorf("%s.Same(%s) = %v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}

func TestEdgeKey(t *testing.T) {
	got := EdgeKey(Descriptor{Name: "HTTP", Version: "1.1"}, Descriptor{Name: "gRPC", Version: "1.0"})
	if got != "HTTP@1.1->gRPC@1.0" {
		t.Errorf("EdgeKey = %q", got)
	}
}

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		input string
		want  string
		valid bool
	}{
		{"JSON@1.0", "JSON@1.0", true},
		{" XML@1.0 ", "XML@1.0", true},
		{"JSON", "", false},
		{"@1.0", "", false},
		{"JSON@", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		d, err := ParseDescriptor(tt.input)
		if (err == nil) != tt.valid {
			t.Errorf("ParseDescriptor(%q) err = %v, want valid=%v", tt.input, err, tt.valid)
			continue
		}
		if tt.valid && d.Key() != tt.want {
			t.Errorf("ParseDescriptor(%q) = %s, want %s", tt.input, d.Key(), tt.want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		input string
		want  Direction
		valid bool
	}{
		{"", DirectionForward, true},
		{"forward", DirectionForward, true},
		{"reverse", DirectionReverse, true},
		{"sideways", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDirection(tt.input)
		if ok != tt.valid || got != tt.want {
			t.Errorf("ParseDirection(%q) = %q,%v, want %q,%v", tt.input, got, ok, tt.want, tt.valid)
		}
	}
}

func TestAdapterContext_NilSafe(t *testing.T) {
	var c *AdapterContext
	if !c.IsStrict() {
		t.Error("nil context should be strict")
	}
	if _, ok := c.Rule("indent"); ok {
		t.Error("nil context should have no rules")
	}

	c = &AdapterContext{ValidationLevel: ValidationLenient, TransformationRules: map[string]any{"indent": 2}}
	if c.IsStrict() {
		t.Error("lenient context reported strict")
	}
	if v, ok := c.Rule("indent"); !ok || v != 2 {
		t.Errorf("Rule(indent) = %v,%v", v, ok)
	}
}

func TestDescriptor_UnmarshalJSON(t *testing.T) {
	var req struct {
		Source Descriptor `json:"source"`
		Target Descriptor `json:"target"`
	}
	body := `{"source":"CSV@1.0","target":{"name":"XML","version":"1.0","capabilities":["Attributes"]}}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Source.Key() != "CSV@1.0" {
		t.Errorf("string form: got %s", req.Source)
	}
	if req.Target.Key() != "XML@1.0" || !req.Target.HasCapability("Attributes") {
		t.Errorf("object form: got %+v", req.Target)
	}

	var d Descriptor
	if err := json.Unmarshal([]byte(`"JSON"`), &d); err == nil {
		t.Error("expected error for string without version")
	}
}
