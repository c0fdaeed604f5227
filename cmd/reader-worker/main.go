// Package main runs the feed fetch engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/reader-engine/internal/app"
	"github.com/JakeFAU/reader-engine/internal/config"
	"github.com/JakeFAU/reader-engine/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("engine init failed", zap.Error(err))
		os.Exit(1)
	}
	defer engine.Close()

	logger.Info("engine started",
		zap.String("store", cfg.Store.Provider),
		zap.String("queue", cfg.Queue.Provider),
		zap.Int("workers", cfg.Fetch.Concurrency))

	if err := engine.Run(ctx); err != nil {
		logger.Error("engine stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
