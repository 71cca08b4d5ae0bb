package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/filter"
	"github.com/af-corp/protobridge/internal/types"
)

// Detection represents a detected secret in a payload string.
type Detection struct {
	PatternName string // e.g. "AWS Access Key"
	Path        string // location in the payload, e.g. "$.rows[2].dsn"
	Start       int    // byte offset
	End         int    // byte offset
}

// Scanner scans text for secrets using pre-compiled regex patterns.
type Scanner struct {
	patterns []Pattern
	cfg      func() config.SecretsFilterConfig
}

// NewScanner creates a scanner with the default secret patterns.
func NewScanner(cfg func() config.SecretsFilterConfig) *Scanner {
	return &Scanner{patterns: DefaultPatterns(), cfg: cfg}
}

// AddPatterns compiles custom signatures and appends them to the built-ins.
func (s *Scanner) AddPatterns(custom map[string]string) error {
	extra, err := CompilePatterns(custom)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, extra...)
	return nil
}

func (s *Scanner) Name() string  { return "secrets" }
func (s *Scanner) Enabled() bool { return s.cfg().Enabled }

// Scan checks a single text string for secrets and returns all detections.
func (s *Scanner) Scan(text string) []Detection {
	var detections []Detection
	for _, p := range s.patterns {
		locs := p.Regex.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			detections = append(detections, Detection{
				PatternName: p.Name,
				Start:       loc[0],
				End:         loc[1],
			})
		}
	}
	return detections
}

// ScanPayload walks a decoded payload and scans every string it holds,
// map keys included.
func (s *Scanner) ScanPayload(v any) []Detection {
	var detections []Detection
	s.walk("$", v, &detections)
	return detections
}

func (s *Scanner) walk(path string, v any, out *[]Detection) {
	switch val := v.(type) {
	case string:
		s.collect(path, val, out)
	case []byte:
		s.collect(path, string(val), out)
	case map[string]any:
		for k, child := range val {
			s.collect(path, k, out)
			s.walk(path+"."+k, child, out)
		}
	case map[string]string:
		for k, child := range val {
			s.collect(path, k, out)
			s.collect(path+"."+k, child, out)
		}
	case []any:
		for i, child := range val {
			s.walk(fmt.Sprintf("%s[%d]", path, i), child, out)
		}
	}
}

func (s *Scanner) collect(path, text string, out *[]Detection) {
	for _, d := range s.Scan(text) {
		d.Path = path
		*out = append(*out, d)
	}
}

// ScanRequest implements filter.Filter.
func (s *Scanner) ScanRequest(_ context.Context, req *types.ConversionRequest) filter.Result {
	detections := s.ScanPayload(req.Data)
	if len(detections) == 0 {
		return filter.Result{Action: filter.ActionPass, FilterName: "secrets"}
	}

	names := make([]string, 0, len(detections))
	seen := make(map[string]bool)
	for _, d := range detections {
		if !seen[d.PatternName] {
			seen[d.PatternName] = true
			names = append(names, d.PatternName)
		}
	}

	action := filter.ActionBlock
	if s.cfg().Action == string(filter.ActionFlag) {
		action = filter.ActionFlag
	}
	return filter.Result{
		Action:     action,
		FilterName: "secrets",
		Message:    fmt.Sprintf("Payload contains credentials: %s at %s", strings.Join(names, ", "), detections[0].Path),
		Detections: len(detections),
	}
}
