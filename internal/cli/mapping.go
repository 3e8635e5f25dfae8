package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/casemill/casemill/internal/config"
	"github.com/casemill/casemill/internal/pipeline"
	"github.com/casemill/casemill/internal/registry"
)

var mappingCmd = &cobra.Command{
	Use:   "mapping <output_dir>",
	Short: "Print the identity table for a dataset",
	Args:  cobra.ExactArgs(1),
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

		layout := pipeline.NewLayout(config.NormalizeDirArg(args[0]))
		table := registry.Load(layout.TablePath(), log)
		if table.Len() == 0 {
			return fmt.Errorf("no identity table at %s", layout.TablePath())
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tREL PATH")
		for _, e := range table.Rows() {
			fmt.Fprintf(w, "%s\t%s\n", e.Name, e.RelPath)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("%d cases, max id %d\n", table.Len(), table.MaxID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mappingCmd)
}
