package config

// AdaptersConfig is the content of adapters.yaml: named adapter instances.
type AdaptersConfig struct {
	Adapters map[string]AdapterConfig `yaml:"adapters"`
}

type AdapterConfig struct {
	Type     string   `yaml:"type"`
	Disabled bool     `yaml:"disabled,omitempty"`
	Score    *float64 `yaml:"score,omitempty"`

	// Version overrides for the adapter's fixed descriptors.
	SourceVersion string `yaml:"source_version,omitempty"`
	TargetVersion string `yaml:"target_version,omitempty"`

	// json-xml
	RootTag   string `yaml:"root_tag,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
	Indent    int    `yaml:"indent,omitempty"`

	// csv-json
	Delimiter string   `yaml:"delimiter,omitempty"`
	Headers   []string `yaml:"headers,omitempty"`
}

// DefaultAdapters registers one instance of every built-in converter.
func DefaultAdapters() *AdaptersConfig {
	return &AdaptersConfig{
		Adapters: map[string]AdapterConfig{
			"csv-json":  {Type: "csv-json"},
			"grpc-json": {Type: "grpc-json"},
			"http-grpc": {Type: "http-grpc"},
			"json-xml":  {Type: "json-xml"},
		},
	}
}
