// cmd/historian/main.go is an asynchronous historian service that pops game
// actions from the Redis queue and persists them to the database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/blackjack/internal/cache"
	"github.com/jason-s-yu/blackjack/internal/config"
	"github.com/jason-s-yu/blackjack/internal/database"
	"github.com/jason-s-yu/blackjack/internal/historian"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := config.NewLogger(cfg)

	if cfg.RedisAddr == "" {
		logger.Fatal("REDIS_ADDR is required for the historian")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DatabaseURL
	if cfg.DBDriver == "sqlite" {
		dsn = cfg.SQLitePath
	}
	store, err := database.Open(ctx, cfg.DBDriver, dsn)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer store.Close()

	rc, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.HistorianQueue)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer rc.Close()

	svc := historian.NewService(rc, store, historian.Options{
		BatchSize:       cfg.HistorianBatchSize,
		FlushInterval:   cfg.HistorianFlush,
		Inactivity:      cfg.InactivityTimeout,
		InactivityCheck: cfg.InactivityCheck,
	}, logger)

	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("historian exited")
	}
	logger.Info("Historian shutdown complete.")
}
