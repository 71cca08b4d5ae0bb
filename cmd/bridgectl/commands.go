package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/router"
	"github.com/af-corp/protobridge/internal/types"
)

type rootOptions struct {
	configDir string
	jsonOut   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "bridgectl",
		Short: "Inspect and run protocol conversions against a local adapter config",
		Long: `bridgectl loads adapters.yaml from the config directory (or the built-in
adapters when none is present) and resolves or executes conversion chains
locally, without a running bridge.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config", "configs", "path to configuration directory")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print machine-readable JSON")

	cmd.AddCommand(newAdaptersCmd(opts))
	cmd.AddCommand(newRouteCmd(opts))
	cmd.AddCommand(newFindCmd(opts))
	cmd.AddCommand(newConvertCmd(opts))
	return cmd
}

// loadRegistry builds the registry from <dir>/adapters.yaml, falling back to
// the built-in adapters when the file does not exist.
func loadRegistry(dir string) (*router.Registry, error) {
	cfg := &config.AdaptersConfig{}
	err := config.LoadFile(filepath.Join(dir, config.AdaptersFile), cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.DefaultAdapters()
	case err != nil:
		return nil, err
	}
	return router.BuildFromConfig(cfg), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAdaptersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List registered adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(opts.configDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				infos := make([]types.AdapterInfo, 0, reg.Len())
				for _, a := range reg.Adapters() {
					infos = append(infos, types.AdapterInfo{
						Edge:   types.EdgeKey(a.Source(), a.Target()),
						Source: a.Source().Key(),
						Target: a.Target().Key(),
						Score:  a.CompatibilityScore(),
					})
				}
				return writeJSON(out, infos)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tTARGET\tSCORE\tCOST")
			for _, a := range reg.Adapters() {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\n", a.Source(), a.Target(), a.CompatibilityScore(), router.EdgeCost(a))
			}
			return tw.Flush()
		},
	}
}

func newRouteCmd(opts *rootOptions) *cobra.Command {
	var maxExpansions int
	cmd := &cobra.Command{
		Use:   "route SOURCE TARGET",
		Short: "Resolve the cheapest conversion chain between two protocols",
		Example: `  bridgectl route CSV@1.0 XML@1.0
  bridgectl route HTTP@1.1 JSON@1.0 --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			reg, err := loadRegistry(opts.configDir)
			if err != nil {
				return err
			}

			chain, ok := router.NewChainBuilder(reg, router.WithMaxExpansions(maxExpansions)).BuildChain(source, target)
			if !ok {
				return fmt.Errorf("no route from %s to %s", source, target)
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, types.RouteResponse{
					Source: source.Key(),
					Target: target.Key(),
					Hops:   chain.Hops(),
					Cost:   chain.Cost(),
				})
			}
			if chain.Len() == 0 {
				fmt.Fprintf(out, "%s is already %s (cost 0.00)\n", source, target)
				return nil
			}
			for i, hop := range chain.Hops() {
				fmt.Fprintf(out, "%d. %s\n", i+1, hop)
			}
			fmt.Fprintf(out, "cost %.2f over %d hop(s)\n", chain.Cost(), chain.Len())
			return nil
		},
	}
	cmd.Flags().IntVar(&maxExpansions, "max-expansions", router.DefaultMaxExpansions, "search expansion cap")
	return cmd
}

// findResult is the --json output of the find command.
type findResult struct {
	types.AdapterInfo
	Exact bool `json:"exact"`
}

func newFindCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find SOURCE TARGET",
		Short: "Look up the single adapter serving a protocol pair",
		Long: `find resolves one adapter for the pair: the adapter registered for the
exact edge, or else the first adapter that reports it can handle the pair
(for example the same protocols at another version).`,
		Example: `  bridgectl find JSON@1.0 XML@1.0
  bridgectl find JSON@2.0 XML@1.0 --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			reg, err := loadRegistry(opts.configDir)
			if err != nil {
				return err
			}

			a, ok := reg.FindAdapter(source, target)
			if !ok {
				return fmt.Errorf("no adapter handles %s to %s", source, target)
			}
			exact := a.Source().Same(source) && a.Target().Same(target)

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, findResult{
					AdapterInfo: types.AdapterInfo{
						Edge:   types.EdgeKey(a.Source(), a.Target()),
						Source: a.Source().Key(),
						Target: a.Target().Key(),
						Score:  a.CompatibilityScore(),
					},
					Exact: exact,
				})
			}
			match := "exact"
			if !exact {
				match = "compatible"
			}
			fmt.Fprintf(out, "%s (score %.2f, %s)\n", types.EdgeKey(a.Source(), a.Target()), a.CompatibilityScore(), match)
			return nil
		},
	}
}

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var (
		source, target string
		reverse        bool
		lenient        bool
		preserve       bool
		input          string
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a payload locally along the cheapest chain",
		Example: `  bridgectl convert --source CSV@1.0 --target XML@1.0 --in rows.csv
  echo '<a><b>1</b></a>' | bridgectl convert --source JSON@1.0 --target XML@1.0 --reverse`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, tgt, err := parsePair(source, target)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(opts.configDir)
			if err != nil {
				return err
			}
			raw, err := readInput(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			chain, ok := router.NewChainBuilder(reg).BuildChain(src, tgt)
			if !ok {
				return fmt.Errorf("no route from %s to %s", src, tgt)
			}

			actx := &types.AdapterContext{
				Direction:        types.DirectionForward,
				ValidationLevel:  types.ValidationStrict,
				PreserveMetadata: preserve,
			}
			if lenient {
				actx.ValidationLevel = types.ValidationLenient
			}

			var result any
			if reverse {
				actx.Direction = types.DirectionReverse
				result, err = chain.Reverse(cmd.Context(), decodeInput(raw), actx)
			} else {
				result, err = chain.Adapt(cmd.Context(), decodeInput(raw), actx)
			}
			if err != nil {
				return fmt.Errorf("convert %s -> %s: %w", src, tgt, err)
			}

			out := cmd.OutOrStdout()
			if s, ok := result.(string); ok && !opts.jsonOut {
				fmt.Fprintln(out, s)
				return nil
			}
			return writeJSON(out, result)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source protocol, name@version")
	cmd.Flags().StringVar(&target, "target", "", "target protocol, name@version")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "run the chain backwards: input is in the target protocol")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "use lenient validation")
	cmd.Flags().BoolVar(&preserve, "preserve-metadata", false, "carry protocol metadata such as namespaces")
	cmd.Flags().StringVar(&input, "in", "-", "input file, - for stdin")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func parsePair(source, target string) (types.Descriptor, types.Descriptor, error) {
	src, err := types.ParseDescriptor(source)
	if err != nil {
		return types.Descriptor{}, types.Descriptor{}, err
	}
	tgt, err := types.ParseDescriptor(target)
	if err != nil {
		return types.Descriptor{}, types.Descriptor{}, err
	}
	return src, tgt, nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// decodeInput treats JSON objects and arrays as structured payloads and
// anything else (CSV, XML) as text.
func decodeInput(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return strings.TrimRight(string(raw), "\n")
}
