package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	csvexport "github.com/JakeFAU/autoplay-crawler/internal/export/csv"
)

// newExportCmd creates the 'export' subcommand, which converts finished
// sessions under the output directory to csv.
func newExportCmd() *cobra.Command {
	var (
		id    string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert session output.json files to output.csv",
		Long: `Walks <output-dir>/*/output.json and writes an output.csv next to each one.
Sessions that already have a csv are skipped unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			exporter := csvexport.New(rt.logger.Named("csv"))
			n, err := exporter.ExportAll(cmd.Context(), rt.cfg.Crawl.OutputDir, id, force)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			rt.logger.Info("export finished", zap.Int("written", n), zap.String("dir", rt.cfg.Crawl.OutputDir))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "only export sessions whose path contains this id")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing csv files")
	return cmd
}
