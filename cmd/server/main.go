package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/blokus-relay/internal/archive"
	"github.com/DoyleJ11/blokus-relay/internal/config"
	"github.com/DoyleJ11/blokus-relay/internal/httpapi"
	"github.com/DoyleJ11/blokus-relay/internal/hub"
	"github.com/DoyleJ11/blokus-relay/internal/lobby"
	"github.com/DoyleJ11/blokus-relay/internal/logging"
	"github.com/DoyleJ11/blokus-relay/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	lobbyOpts := lobby.Options{NotifyRejections: cfg.NotifyRejected}
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		worker := archive.NewWorker(store, cfg.ArchiveBuffer, logger)
		lobbyOpts.Sink = worker
		g.Go(func() error { return worker.Run(ctx) })
	}

	h := hub.NewHub(ctx, hub.Options{
		Lobby:      lobbyOpts,
		Eviction:   hub.PolicyFor(cfg.SessionTTL),
		SweepEvery: cfg.SweepInterval,
		Logger:     logger,
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, ws.Options{
		OutboxSize:     cfg.OutboxSize,
		PingInterval:   cfg.PingInterval,
		WriteTimeout:   cfg.WriteTimeout,
		ReadLimit:      cfg.ReadLimit,
		OriginPatterns: cfg.AllowedOrigins,
		Logger:         logger,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown; stopping
		// the hub tears their lobbies down.
		h.Shutdown()
		err := srv.Shutdown(shutdownCtx)
		select {
		case <-h.Done():
		case <-shutdownCtx.Done():
			err = multierr.Append(err, errors.New("hub did not stop in time"))
		}
		return err
	})

	return g.Wait()
}
