package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neilberkman/rentcheck/internal/core/models"
)

var (
	locateLat     float64
	locateLng     float64
	locateAddress string
)

var locateCmd = &cobra.Command{
	Use:   "locate <analysis-id>",
	Short: "Attach a geocoded position to an analysis",
	Long: `Attach coordinates from a geocoder to an analysis in history.

Example:
  rentcheck locate an-123 --lat 51.5072 --lng -0.1276 --address "London, UK"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
			return fmt.Errorf("both --lat and --lng are required")
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		loc := models.Location{Latitude: locateLat, Longitude: locateLng, FormattedAddress: locateAddress}
		if err := a.orch.AttachLocation(args[0], loc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Location of %s set to %.5f, %.5f\n", args[0], locateLat, locateLng)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(locateCmd)
	locateCmd.Flags().Float64Var(&locateLat, "lat", 0, "Latitude")
	locateCmd.Flags().Float64Var(&locateLng, "lng", 0, "Longitude")
	locateCmd.Flags().StringVar(&locateAddress, "address", "", "Formatted address returned by the geocoder")
}
