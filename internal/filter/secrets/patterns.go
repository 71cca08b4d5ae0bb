package secrets

import (
	"fmt"
	"regexp"
	"sort"
)

// Pattern is a named credential signature.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// DefaultPatterns returns the built-in credential signatures. Payloads crossing
// the bridge are mostly records and messages, so the set leans on connection
// strings and tokens rather than whole key files.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "AWS Access Key", Regex: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{Name: "GitHub Token", Regex: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
		{Name: "Slack Token", Regex: regexp.MustCompile(`xox[abposr]-[A-Za-z0-9-]{10,}`)},
		{Name: "Stripe Secret Key", Regex: regexp.MustCompile(`sk_live_[A-Za-z0-9]{24,}`)},
		{Name: "Google API Key", Regex: regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`)},
		{Name: "Private Key", Regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
		{
			Name:  "Connection String",
			Regex: regexp.MustCompile(`(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|rediss|amqps?|nats)://[^\s"'<>]+`),
		},
		{Name: "Basic Auth URL", Regex: regexp.MustCompile(`https?://[^\s:/@"'<>]+:[^\s@/"'<>]+@[^\s"'<>]+`)},
		{Name: "JWT Token", Regex: regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)},
	}
}

// CompilePatterns compiles operator supplied signatures keyed by name. The
// result is ordered by name so detections are reported deterministically.
func CompilePatterns(custom map[string]string) ([]Pattern, error) {
	names := make([]string, 0, len(custom))
	for name := range custom {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Pattern, 0, len(names))
	for _, name := range names {
		re, err := regexp.Compile(custom[name])
		if err != nil {
			return nil, fmt.Errorf("compile secret pattern %q: %w", name, err)
		}
		out = append(out, Pattern{Name: name, Regex: re})
	}
	return out, nil
}
