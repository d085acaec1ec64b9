package commands

import "github.com/spf13/cobra"

// RootCmd assembles the valuemap command tree.
func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "valuemap",
		Short:         "Filter and summarize property valuation datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug output")

	rootCmd.AddCommand(
		SummaryCmd(),
		FilterCmd(),
		GeoJSONCmd(),
		SampleCmd(),
	)

	return rootCmd
}
