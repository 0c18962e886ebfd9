package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fpang/litter-report/internal/config"
	"github.com/fpang/litter-report/internal/logging"
	"github.com/spf13/cobra"
)

var configFlag string

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "report-cli",
	Short: "Operator tools for the litter report engine",
	Long: `Report CLI exercises the engine's backends from a terminal: classify a
photo, geocode an address, check a coordinate against the reporting region
and inspect or clear the persisted draft.

Examples:
  report-cli classify ./bags.jpg --classifier-provider gemini
  report-cli classify --check-key
  report-cli geocode search "Grote Markt 1"
  report-cli geocode reverse 53.2194 6.5665
  report-cli region check 53.2194 6.5665
  report-cli draft show`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configFlag, "config", "c", "", "Config file (yaml, json or toml)")
	f.String("log-level", "info", "Log level: debug, info, warn, error")
	f.String("region-file", "", "YAML file with the allowed reporting region")
	f.String("drafts-backend", "sqlite", "Draft persistence: memory, sqlite, dynamodb")
	f.String("classifier-provider", "none", "Photo classifier: none, gemini, http")

	rootCmd.AddCommand(classifyCmd, geocodeCmd, regionCmd, draftCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Options{File: configFlag, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	logging.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
