package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolgate/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Loads the configuration, applies defaults and environment overrides,
and reports the first problem found. Catalog cross-checks (core tool ids,
per-tool config keys) run at startup in the embedding process, not here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}

		fmt.Printf("configuration OK\n")
		fmt.Printf("  routing: top_k=%d threshold=%.2f ambiguity_delta=%.2f core_tools=%d\n",
			cfg.Routing.TopK, cfg.Routing.Threshold, cfg.Routing.AmbiguityDelta, len(cfg.Routing.CoreTools))
		fmt.Printf("  gateway: large_response_threshold=%d default_timeout=%s\n",
			cfg.Gateway.LargeResponseThreshold, cfg.Gateway.DefaultTimeout)
		fmt.Printf("  embedding: provider=%s model=%s dim=%d\n",
			cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
		fmt.Printf("  tools configured: %d\n", len(cfg.Tools))
		return nil
	},
}
