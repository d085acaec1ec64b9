package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"valuemap/server/internal/ingest"
	"valuemap/server/internal/pipeline"
)

func FilterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Print the records that pass the filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, _, err := loadFiltered(cmd)
			if err != nil {
				return err
			}

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "csv":
				return ingest.WriteCSV(cmd.OutOrStdout(), records)
			case "months":
				return writeJSON(cmd.OutOrStdout(), pipeline.GroupByMonthDesc(records))
			case "json":
				return writeJSON(cmd.OutOrStdout(), records)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}

	addSourceFlags(cmd)
	addFilterFlags(cmd)
	cmd.Flags().String("format", "json", "Output format: json, csv or months")

	return cmd
}
