// Package cli wires the cobra command surface: run, check, mapping,
// analyze. Commands build an immutable config from defaults, the
// optional YAML file, and flags (in that order), then hand off to the
// pipeline.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/casemill/casemill/internal/config"
	"github.com/casemill/casemill/internal/logging"
)

var (
	cfgFile     string
	flagVerbose bool
	flagColor   string
)

var rootCmd = &cobra.Command{
	Use:   "casemill",
	Short: "Incremental CT-study preprocessing pipeline",
	Long: `casemill converts a tree of raw per-patient CT studies (DICOM) into a
normalized, HU-clipped, isotropically resampled dataset of case_NNN
volumes. Runs are incremental: re-running after new studies arrive
processes only what is new or missing, and case identifiers never
change once assigned.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. version is stamped by the build.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "casemill: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&flagColor, "color", "", "color output: auto, always or never")
}

// buildConfig layers defaults, then the config file, then the
// persistent flags. Command-specific flags are applied by each command.
func buildConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		if err := config.LoadFile(cfgFile, &cfg); err != nil {
			return cfg, err
		}
	}
	if flagVerbose {
		cfg.Verbose = true
	}
	if cmd.Flags().Changed("color") {
		cfg.ColorMode = config.ColorMode(flagColor)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(cfg)
}
