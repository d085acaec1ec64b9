package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"valuemap/server/config"
	"valuemap/server/internal/ingest"
	"valuemap/server/internal/sample"
)

func SampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate a synthetic dataset in the upload CSV format",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, loc, err := getConfig()
			if err != nil {
				return err
			}

			seed, _ := cmd.Flags().GetInt64("seed")
			if !cmd.Flags().Changed("seed") {
				seed = time.Now().UnixNano()
				fmt.Fprintf(cmd.ErrOrStderr(), "Using seed %d\n", seed)
			}

			records := sample.NewGenerator(seed, time.Now().In(loc), config.SupportedCities).Generate()

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "csv":
				return ingest.WriteCSV(cmd.OutOrStdout(), records)
			case "json":
				return writeJSON(cmd.OutOrStdout(), records)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}

	cmd.Flags().Int64("seed", 0, "Random seed; the same seed always produces the same records")
	cmd.Flags().String("format", "csv", "Output format: csv or json")

	return cmd
}
