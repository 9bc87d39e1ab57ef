package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helio/sungo/internal/ephemeris"
	"github.com/helio/sungo/internal/metadata"
)

func newDistanceCmd(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Print the analytic Earth-Sun distance for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := time.Now().UTC()
			if date != "" {
				var err error
				if t, err = metadata.ParseDate(date); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}
			radii := ephemeris.EarthDistance(t)
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"date":          t,
				"julian_date":   ephemeris.JulianDate(t),
				"au":            ephemeris.EarthDistanceAU(t.UnixMilli()),
				"solar_radii":   radii,
				"radius_arcsec": ephemeris.AngularRadiusArcsec(radii),
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date (UTC), defaults to now")
	return cmd
}
