package commands

import (
	"github.com/spf13/cobra"

	"valuemap/server/config"
	"valuemap/server/internal/geometry"
)

func GeoJSONCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geojson",
		Short: "Print the filtered records as a GeoJSON feature collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, cfg, err := loadFiltered(cmd)
			if err != nil {
				return err
			}

			if hulls, _ := cmd.Flags().GetBool("hulls"); hulls {
				return writeJSON(cmd.OutOrStdout(), geometry.CommunityHulls(records))
			}
			if view, _ := cmd.Flags().GetBool("view"); view {
				return writeJSON(cmd.OutOrStdout(), geometry.Bounds(records, config.DefaultCity(cfg.DefaultCity)))
			}
			return writeJSON(cmd.OutOrStdout(), geometry.FeatureCollection(records))
		},
	}

	addSourceFlags(cmd)
	addFilterFlags(cmd)
	cmd.Flags().Bool("hulls", false, "Print community hull polygons instead of points")
	cmd.Flags().Bool("view", false, "Print the map centre and bounds instead of points")

	return cmd
}
