package cmd

import (
	"fmt"
	"os"

	"github.com/lehigh-university-libraries/alttext/internal/export"
	"github.com/spf13/cobra"
)

func newExportCmd(g *globals) *cobra.Command {
	var from string
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert a CSV export to another format",
		Long: `Export reads a filename,alt_text,chars CSV produced by the web interface
or the describe command and writes it in the format implied by --output.`,
		Example: `  # Convert a downloaded CSV to Parquet
  alttext export --from alt_text.csv --output alt_text.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.FormatFromPath(output)
			if err != nil {
				return err
			}

			in, err := os.Open(from)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", from, err)
			}
			defer in.Close()

			results, err := export.ReadCSV(in)
			if err != nil {
				return err
			}

			return writeResults(cmd.OutOrStdout(), output, format, results)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "CSV file to read")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, .csv or .parquet")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
