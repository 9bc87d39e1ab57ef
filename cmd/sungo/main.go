package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/helio/sungo/internal/config"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// cli carries state shared by the subcommands.
type cli struct {
	cfgPath  string
	logLevel string
	cfg      config.Config
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "sungo",
		Short: "Place solar observatory images on 3D models",
		Long: `sungo turns Helioviewer image headers into model placement parameters
and manages time-indexed frame sets for playback.

Configuration is read from defaults, then the TOML file given by --config,
then SUNGO_* environment variables.`,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Config problems are reported before the configured level is known.
			boot := newLogger(os.Stderr, slog.LevelInfo)
			cfg, err := config.Load(c.cfgPath, boot)
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				cfg.LogLevel = c.logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			c.cfg = cfg
			c.logger = newLogger(os.Stderr, cfg.SlogLevel())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newFramesCmd(c),
		newParamsCmd(c),
		newDistanceCmd(c),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
