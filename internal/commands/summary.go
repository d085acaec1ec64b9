package commands

import (
	"github.com/spf13/cobra"

	"valuemap/server/internal/pipeline"
)

func SummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print dashboard statistics for the filtered records",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, _, err := loadFiltered(cmd)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), pipeline.Summarize(records))
		},
	}

	addSourceFlags(cmd)
	addFilterFlags(cmd)

	return cmd
}
