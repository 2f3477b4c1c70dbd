package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Chase-Garrett/towhee/internal/auth"
	"github.com/Chase-Garrett/towhee/internal/config"
	"github.com/Chase-Garrett/towhee/internal/gateway"
	"github.com/Chase-Garrett/towhee/internal/metrics"
	"github.com/Chase-Garrett/towhee/internal/server"
	"github.com/Chase-Garrett/towhee/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	gw := gateway.New(ctx, logger, st, tokens, metrics.New(reg), gateway.Config{
		MaxMessageLength: cfg.Gateway.MaxMessageLength,
	})

	srv := server.New(logger, st, tokens, gw, reg, cfg.Server.Address, cfg.Server.ShutdownTimeout)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}
