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

	"github.com/DoyleJ11/math-tennis-backend/internal/config"
	"github.com/DoyleJ11/math-tennis-backend/internal/httpapi"
	"github.com/DoyleJ11/math-tennis-backend/internal/hub"
	"github.com/DoyleJ11/math-tennis-backend/internal/lobby"
	"github.com/DoyleJ11/math-tennis-backend/internal/publish"
	"github.com/DoyleJ11/math-tennis-backend/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	levels, err := cfg.Levels()
	if err != nil {
		return err
	}

	var pub publish.Publisher = publish.Nop{}
	if cfg.NATSURL != "" {
		nc, err := publish.ConnectNATS(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		pub = nc
		logger.Info("publishing match results", zap.String("subject", nc.Subject()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns := ws.NewConnections(logger)
	h := hub.NewHub(context.Background(), hub.Config{
		Levels:      levels,
		Notifier:    conns,
		Publisher:   pub,
		GracePeriod: cfg.ReconnectGrace,
		Delays: lobby.Delays{
			Hit:     cfg.HitDelay,
			Timeout: cfg.TimeoutDelay,
			Point:   cfg.PointDelay,
		},
		GamesToWin: cfg.GamesToWin,
		Logger:     logger,
	})

	wsOpts := ws.DefaultOptions()
	wsOpts.OriginPatterns = cfg.AllowedOrigins
	handler := httpapi.SetupRoutes(h, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Socket:         ws.Handler(h, conns, wsOpts, logger),
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", server.Addr), zap.Strings("levels", levelNames(h)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(sctx)
		conns.CloseAll()
		err = multierr.Append(err, h.Shutdown(sctx))
		err = multierr.Append(err, pub.Close())
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with errors", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func levelNames(h *hub.Hub) []string {
	names := h.Levels().Names()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
