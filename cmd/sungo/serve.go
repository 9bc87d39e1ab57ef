package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helio/sungo/internal/api"
	"github.com/helio/sungo/internal/auth"
	"github.com/helio/sungo/internal/resource"
	"github.com/helio/sungo/internal/stream"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(c)
		},
	}
}

func runServe(c *cli) error {
	cfg := c.cfg
	logger := newLogger(os.Stdout, cfg.SlogLevel())
	logger.Info("configuration", "config", cfg)

	svc := newServices(cfg, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The mesh is shared by every sphere model; load it before reporting ready.
	var meshReady atomic.Bool
	go func() {
		if _, err := svc.meshes.Get(ctx, cfg.ModelPath); err != nil {
			logger.Error("model mesh preload failed", "path", cfg.ModelPath, "error", err)
			return
		}
		meshReady.Store(true)
		logger.Info("model mesh loaded", "path", cfg.ModelPath)
	}()

	if cfg.WatchAssets && resource.IsLocalPath(cfg.ModelPath) {
		watcher := resource.NewAssetWatcher(svc.meshes, []string{cfg.ModelPath}, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("asset watcher stopped", "error", err)
			}
		}()
	}

	srv := api.NewServer(cfg.HTTPAddr, logger, auth.Config{
		Enabled: cfg.AuthEnabled,
		Token:   cfg.AuthToken,
	}, api.Deps{
		Images:     svc.client,
		Frames:     svc.frameDeps(cfg, logger),
		Quality:    cfg.QualitySetting(),
		Cadence:    cfg.Cadence,
		TrustProxy: cfg.TrustProxy,
		Stream: stream.Config{
			MaxConcurrentPerIP: cfg.StreamMaxPerIP,
			MaxConcurrent:      cfg.StreamMaxTotal,
			KeepaliveInterval:  cfg.StreamKeepalive,
		},
		StreamInterval: cfg.StreamInterval,
		Ready: func() error {
			if !meshReady.Load() {
				return errors.New("model mesh not loaded")
			}
			return nil
		},
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr, "auth_enabled", cfg.AuthEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
