package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helio/sungo/internal/frames"
	"github.com/helio/sungo/internal/metadata"
	"github.com/helio/sungo/internal/render"
	"github.com/helio/sungo/internal/source"
)

type stepResult struct {
	Requested time.Time          `json:"requested"`
	Applied   time.Time          `json:"applied"`
	Model     *render.ModelState `json:"model,omitempty"`
}

type framesOutput struct {
	SourceID int              `json:"source_id"`
	Geometry source.Geometry  `json:"geometry"`
	Count    int              `json:"count"`
	Range    frames.DateRange `json:"range"`
	Frames   []frames.Info    `json:"frames"`
	Steps    []stepResult     `json:"steps,omitempty"`
}

func newFramesCmd(c *cli) *cobra.Command {
	var (
		src     int
		start   string
		end     string
		cadence time.Duration
		quality string
		at      []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Load a frame set and step it through the given times",
		Example: `  sungo frames --source 13 --start 2024-01-18T00:00:00Z --end 2024-01-18T06:00:00Z \
    --cadence 1h --at 2024-01-18T02:40:00Z --at 2024-01-18T05:10:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startT, err := metadata.ParseDate(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			endT := startT
			if end != "" {
				if endT, err = metadata.ParseDate(end); err != nil {
					return fmt.Errorf("--end: %w", err)
				}
			}
			if !cmd.Flags().Changed("cadence") {
				cadence = c.cfg.Cadence
			}
			q := c.cfg.QualitySetting()
			if quality != "" {
				if q, err = source.ParseQuality(quality); err != nil {
					return err
				}
			}
			steps := make([]time.Time, len(at))
			for i, v := range at {
				if steps[i], err = metadata.ParseDate(v); err != nil {
					return fmt.Errorf("--at %q: %w", v, err)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			svc := newServices(c.cfg, c.logger)
			store := frames.New(ctx, frames.Options{
				Source:  src,
				Start:   startT,
				End:     endT,
				Cadence: cadence,
				Quality: q,
			}, svc.frameDeps(c.cfg, c.logger))
			defer store.Dispose()

			if err := store.Ready(ctx); err != nil {
				if errors.Is(err, frames.ErrNoFrames) {
					return fmt.Errorf("source %d has no images between %s and %s", src, startT.Format(time.RFC3339), endT.Format(time.RFC3339))
				}
				return err
			}

			out := framesOutput{
				SourceID: src,
				Geometry: store.Geometry(),
				Count:    store.Count(),
				Range:    store.Range(),
				Frames:   store.Frames(),
			}
			for _, t := range steps {
				applied, err := store.SetTime(t)
				if err != nil {
					return fmt.Errorf("set time %s: %w", t.Format(time.RFC3339), err)
				}
				step := stepResult{Requested: t, Applied: applied}
				if m, ok := store.Model().(*render.HeadlessModel); ok {
					st := m.State()
					step.Model = &st
				}
				out.Steps = append(out.Steps, step)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&src, "source", 13, "Helioviewer source ID")
	cmd.Flags().StringVar(&start, "start", "", "range start (UTC)")
	cmd.Flags().StringVar(&end, "end", "", "range end (UTC), defaults to start")
	cmd.Flags().DurationVar(&cadence, "cadence", time.Hour, "query step, 0 for a single query")
	cmd.Flags().StringVar(&quality, "quality", "", "quality preset (low, default, high, maximum)")
	cmd.Flags().StringArrayVar(&at, "at", nil, "time to select; repeatable")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall load timeout")
	cmd.MarkFlagRequired("start")
	return cmd
}
