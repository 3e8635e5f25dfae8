package cli

import (
	"github.com/spf13/cobra"

	"github.com/casemill/casemill/internal/check"
	"github.com/casemill/casemill/internal/display"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the external tools are available",
	Long: `Check that dcmdjpeg (DCMTK), dcm2niix, and c3d (Convert3D) are on
PATH and report their versions. Informational only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(&cfg)
		if err != nil {
			return err
		}
		defer log.Close()

		display.PrintBanner()
		check.RunCheck(&cfg, log)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
