package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/explab/explab/internal/config"
	"github.com/explab/explab/internal/grpcclient"
	"github.com/explab/explab/internal/ocr"
	"github.com/explab/explab/internal/orchestrator"
	"github.com/explab/explab/internal/screen"
	"github.com/explab/explab/internal/server"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Connect to OCR gRPC server
	client, err := grpcclient.New(grpcclient.DefaultConfig(cfg.OCRAddr))
	if err != nil {
		slog.Error("failed to create OCR client", "addr", cfg.OCRAddr, "error", err)
		return err
	}
	defer func() { _ = client.Close() }()

	engine := ocr.NewLazy(func(ctx context.Context) (ocr.Engine, error) {
		if err := client.Check(ctx); err != nil {
			return nil, err
		}
		return client, nil
	})
	if cfg.OCREagerInit {
		if err := engine.Init(ctx); err != nil {
			slog.Error("OCR engine unavailable", "addr", cfg.OCRAddr, "error", err)
			return err
		}
	}
	go client.WatchHealth(ctx)

	mgr := orchestrator.NewManager(cfg, func() screen.Capturer { return screen.New(cfg.AppName) }, engine)
	defer mgr.Close()

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				mgr.ApplyConfig(ctx, next)
			})
			if err != nil {
				slog.Error("config watch stopped", "path", configPath, "error", err)
			}
		}()
	}

	srv := server.New(mgr, client.Breaker())

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("explab server starting", "http", cfg.HTTPAddr, "ocr", cfg.OCRAddr, "app", cfg.AppName)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("http server error", "error", err)
		return err
	}

	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}

