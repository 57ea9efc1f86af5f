// Package cmd provides the CLI commands for costrules.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"costrules/internal/config"
	"costrules/internal/logging"
)

// version is overridden at build time with -ldflags
var version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "costrules",
	Short: "Apply post-processing rules to cost and usage datasets",
	Long: `costrules applies an ordered list of post-processing rules to an hourly
cost and usage dataset. Each rule selects input values by tag, groups them,
evaluates arithmetic formulas and writes derived cost or usage values back.

Examples:
  costrules run --rules rules.hcl --data 2020-01.json --out 2020-01-processed.json
  costrules validate rules.hcl extra.yaml
  costrules explain --rules rules.hcl --data 2020-01.json --rule requests --product AmazonS3 --hour 0
  costrules eval "(10 - 4) * 0.01 / 1000"`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	defer logging.Sync()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.Set(cfg)
	}

	// Initialize logging
	cfg := config.Get()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "costrules version %s\n", version)
	},
}
