package adapters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/protobridge/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		typ    string
		source string
		target string
		score  float64
	}{
		{"csv-json", "CSV@1.0", "JSON@1.0", 0.75},
		{"grpc-json", "gRPC@1.0", "JSON@1.0", 0.85},
		{"http-grpc", "HTTP@1.1", "gRPC@1.0", 0.8},
		{"json-xml", "JSON@1.0", "XML@1.0", 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			a, err := New(config.AdapterConfig{Type: tt.typ})
			require.NoError(t, err)
			assert.Equal(t, tt.source, a.Source().Key())
			assert.Equal(t, tt.target, a.Target().Key())
			assert.InDelta(t, tt.score, a.CompatibilityScore(), 1e-9)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(config.AdapterConfig{Type: "yaml-toml"})
	assert.ErrorContains(t, err, "unknown adapter type")

	for _, s := range []float64{-0.1, 1.5, math.NaN()} {
		score := s
		_, err := New(config.AdapterConfig{Type: "json-xml", Score: &score})
		assert.Error(t, err, "score %v", s)
	}
}

func TestTypes(t *testing.T) {
	assert.Equal(t, []string{"csv-json", "grpc-json", "http-grpc", "json-xml"}, Types())
}
