package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helio/sungo/internal/frames"
	"github.com/helio/sungo/internal/metadata"
	"github.com/helio/sungo/internal/render"
	"github.com/helio/sungo/internal/source"
)

func newParamsCmd(c *cli) *cobra.Command {
	var (
		src     int
		date    string
		quality string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Print the model placement for the image closest to a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := time.Now().UTC()
			if date != "" {
				var err error
				if t, err = metadata.ParseDate(date); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}
			var q source.Quality
			if quality != "" {
				var err error
				if q, err = source.ParseQuality(quality); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			svc := newServices(c.cfg, c.logger)
			store := frames.NewStatic(ctx, src, t, q, svc.frameDeps(c.cfg, c.logger))
			defer store.Dispose()

			if err := store.Ready(ctx); err != nil {
				return err
			}
			sel, _ := store.Selected()
			out := map[string]any{
				"source_id": src,
				"requested": t,
				"image":     sel,
			}
			if m, ok := store.Model().(*render.HeadlessModel); ok {
				out["model"] = m.State()
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&src, "source", 13, "Helioviewer source ID")
	cmd.Flags().StringVar(&date, "date", "", "observation date (UTC), defaults to now")
	cmd.Flags().StringVar(&quality, "quality", "", "quality preset, defaults to maximum")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "load timeout")
	return cmd
}
