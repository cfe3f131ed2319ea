package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skywarden/internal/alert"
	"skywarden/internal/camera"
	"skywarden/internal/config"
	"skywarden/internal/detect"
	"skywarden/internal/orchestrator"
	"skywarden/internal/snapshot"
	"skywarden/internal/storage"
	"skywarden/internal/storage/sqlite"
	"skywarden/internal/web"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the detection service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		return runService(cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cfg *config.Config) error {
	slog.Info("starting skywarden",
		"camera", cfg.Camera.Source,
		"detector", cfg.AI.Backend,
		"interval", cfg.System.DetectionInterval,
	)

	// Storage.
	db, err := sqlite.New(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	repo := sqlite.NewEventRepository(db)
	defer repo.Close()

	images, err := storage.NewImageStore(cfg.Storage.ImageDirectory, cfg.Storage.MaxImageBytes())
	if err != nil {
		return err
	}

	// Detector backend; a model that cannot initialize is fatal.
	raw, err := buildDetector(cfg.AI)
	if err != nil {
		return err
	}
	adapter := detect.NewAdapter(raw, cfg.AI)
	defer adapter.Close()

	// Alerting.
	hub := web.NewHub()
	channels := alert.BuildChannels(cfg.Notifications, hub)
	limiter := alert.NewRateLimiter(cfg.RateLimiting)
	coordinator := alert.NewCoordinator(limiter, channels,
		cfg.Notifications.ChannelTimeout, cfg.Notifications.DispatchTimeout)

	// Snapshot publisher.
	publisher, err := snapshot.New(cfg.System.SnapshotPath, cfg.System.SnapshotInterval)
	if err != nil {
		return err
	}

	source := camera.New(cfg.Camera, camera.GoCVBackend{})
	orch := orchestrator.New(cfg, source, adapter, coordinator, repo, images, publisher)
	sweeper := storage.NewSweeper(repo, images, cfg.Storage)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		publisher.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx, cfg.System.SweepInterval)
	}()

	if cfg.Web.Enabled {
		server := web.NewServer(cfg.Web, hub, orch, cfg.System.SnapshotPath)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				slog.Error("status server failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Run(ctx)
	}()

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-errCh:
		// Startup-fatal errors (no camera, no model) land here.
		cancel()
		waitTimeout(&wg, cfg.System.ShutdownGrace)
		return err
	}

	// Give the loop and in-flight dispatches a bounded grace period.
	select {
	case <-errCh:
	case <-time.After(cfg.System.ShutdownGrace):
		slog.Warn("shutdown grace elapsed, abandoning in-flight work")
	}
	waitTimeout(&wg, cfg.System.ShutdownGrace)

	slog.Info("skywarden stopped")
	return nil
}

func buildDetector(cfg config.AIConfig) (detect.RawDetector, error) {
	if cfg.Backend == "http" {
		return detect.NewHTTPDetector(cfg.ServerURL), nil
	}
	return detect.NewDNNDetector(cfg)
}

// waitTimeout waits for the group up to d, then gives up.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}
