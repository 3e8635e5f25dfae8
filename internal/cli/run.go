package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/casemill/casemill/internal/check"
	"github.com/casemill/casemill/internal/config"
	"github.com/casemill/casemill/internal/display"
	"github.com/casemill/casemill/internal/pipeline"
)

var (
	flagForce     bool
	flagSkip      []string
	flagOnly      string
	flagWorkers   int
	flagHUMin     float64
	flagHUMax     float64
	flagSpacing   float64
	flagTimeout   time.Duration
	flagNoJournal bool
)

var runCmd = &cobra.Command{
	Use:   "run <input_dir> <output_dir>",
	Short: "Run the enabled pipeline stages",
	Long: `Run the pipeline: decompress raw DICOM, convert studies to NIfTI,
clip intensities to the HU window, resample to isotropic spacing under
stable case_NNN names, and recompute global statistics.

Each stage skips work whose output already exists and looks complete,
so re-running after new studies arrive only processes what is new.
--force reprocesses everything and rebuilds the identity table.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}
		cfg.InputDir = config.NormalizeDirArg(args[0])
		cfg.OutputDir = config.NormalizeDirArg(args[1])
		cfg.Force = flagForce
		cfg.NoJournal = cfg.NoJournal || flagNoJournal
		if cmd.Flags().Changed("workers") {
			cfg.Workers = flagWorkers
		}
		if cmd.Flags().Changed("hu-min") {
			cfg.HUMin = flagHUMin
		}
		if cmd.Flags().Changed("hu-max") {
			cfg.HUMax = flagHUMax
		}
		if cmd.Flags().Changed("spacing") {
			cfg.SpacingMM = flagSpacing
		}
		if cmd.Flags().Changed("tool-timeout") {
			cfg.ToolTimeout = config.Duration(flagTimeout)
		}
		for _, s := range flagSkip {
			if !cfg.Stages.Disable(s) {
				return fmt.Errorf("unknown stage %q (stages: %v)", s, config.StageOrder)
			}
		}
		if flagOnly != "" {
			if !cfg.Stages.Only(flagOnly) {
				return fmt.Errorf("unknown stage %q (stages: %v)", flagOnly, config.StageOrder)
			}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		inputAbs, err := absPath(cfg.InputDir)
		if err != nil {
			return fmt.Errorf("input not found: %s", cfg.InputDir)
		}
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("cannot create output directory: %w", err)
		}
		outputAbs, err := absPath(cfg.OutputDir)
		if err != nil {
			return fmt.Errorf("cannot resolve output path: %s", cfg.OutputDir)
		}
		if err := cfg.ValidatePaths(inputAbs, outputAbs); err != nil {
			return err
		}
		if cfg.LogFile == "" {
			cfg.LogFile = filepath.Join(cfg.OutputDir, pipeline.LogFileName)
		}

		log, err := newLogger(&cfg)
		if err != nil {
			return err
		}
		defer log.Close()

		display.PrintBanner()
		log.Info("=== casemill %s ===", cmd.Root().Version)
		log.Info("In:  %s", cfg.InputDir)
		log.Info("Out: %s", cfg.OutputDir)
		log.Info("Window: [%g, %g] HU, spacing %g mm, %d worker(s)",
			cfg.HUMin, cfg.HUMax, cfg.SpacingMM, cfg.Workers)
		if cfg.Force {
			log.Warn("FORCE: reprocessing everything, identity table will be rebuilt")
		}

		if err := check.CheckDeps(&cfg); err != nil {
			log.Warn("%v", err)
			log.Warn("The affected stage(s) will be skipped")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st := pipeline.New(&cfg, log).Run(ctx)
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted")
		}
		if st.Failed > 0 || st.StageErrors > 0 {
			return fmt.Errorf("%d unit(s) failed, %d stage(s) could not run", st.Failed, st.StageErrors)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "reprocess everything, ignoring existing outputs")
	runCmd.Flags().StringSliceVar(&flagSkip, "skip", nil, "stage to skip (repeatable)")
	runCmd.Flags().StringVar(&flagOnly, "only", "", "run only this stage")
	runCmd.Flags().IntVar(&flagWorkers, "workers", 1, "parallel units per stage")
	runCmd.Flags().Float64Var(&flagHUMin, "hu-min", -50, "lower HU clipping bound")
	runCmd.Flags().Float64Var(&flagHUMax, "hu-max", 800, "upper HU clipping bound")
	runCmd.Flags().Float64Var(&flagSpacing, "spacing", 1.0, "target isotropic spacing in mm")
	runCmd.Flags().DurationVar(&flagTimeout, "tool-timeout", 0, "per-invocation bound for external tools (0 = none)")
	runCmd.Flags().BoolVar(&flagNoJournal, "no-journal", false, "skip the SQLite run journal")
	rootCmd.AddCommand(runCmd)
}

// absPath returns the absolute path with symlinks resolved, for
// comparing the input and output hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
