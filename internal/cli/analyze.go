package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/casemill/casemill/internal/config"
	"github.com/casemill/casemill/internal/pipeline"
)

var flagSampleRate int

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dir>",
	Short: "Report the HU distribution of a volume directory",
	Long: `Scan every .nii.gz volume under the directory and report min/max,
percentiles, and the foreground mean, then suggest hu_min/hu_max values
for the window stage. Percentiles are computed on subsampled voxels;
min/max are exact. Read-only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("sample-rate") {
			cfg.SampleRate = flagSampleRate
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		log, err := newLogger(&cfg)
		if err != nil {
			return err
		}
		defer log.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return pipeline.Analyze(ctx, &cfg, log, config.NormalizeDirArg(args[0]))
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&flagSampleRate, "sample-rate", 20, "read one voxel in N for percentile estimation")
	rootCmd.AddCommand(analyzeCmd)
}
