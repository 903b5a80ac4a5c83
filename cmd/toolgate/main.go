package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"toolgate/internal/logging"
	"toolgate/internal/version"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "toolgate",
		Short: "Toolgate - tool invocation governance for AI assistants",
		Long: `Toolgate sits between an assistant's reasoning loop and its pool of
tools. It ranks the catalog per turn, enforces roles and rate limits,
caches results, late-binds credentials, and offloads oversized payloads.`,
		Version: version.GetVersionString(),
	}
)

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./toolgate.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	logging.Initialize(debug)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
