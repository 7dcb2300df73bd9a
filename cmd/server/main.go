// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/blackjack/internal/auth"
	"github.com/jason-s-yu/blackjack/internal/cache"
	"github.com/jason-s-yu/blackjack/internal/config"
	"github.com/jason-s-yu/blackjack/internal/database"
	"github.com/jason-s-yu/blackjack/internal/handlers"
	"github.com/sirupsen/logrus"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := config.NewLogger(cfg)

	if err := initAuth(cfg); err != nil {
		logger.WithError(err).Fatal("failed to initialize session keys")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DatabaseURL
	if cfg.DBDriver == "sqlite" {
		dsn = cfg.SQLitePath
	}
	store, err := database.Open(ctx, cfg.DBDriver, dsn)
	if err != nil {
		logger.WithError(err).WithField("driver", cfg.DBDriver).Fatal("failed to open database")
	}
	defer store.Close()
	logger.WithField("driver", cfg.DBDriver).Info("database ready")

	gs := handlers.NewGameServer(store, cfg.Rules, logger)
	gs.CookieSecure = cfg.CookieSecure

	if cfg.RedisAddr != "" {
		rc, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.HistorianQueue)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer rc.Close()
		gs.Publisher = rc
		gs.Revoker = rc
		logger.WithFields(logrus.Fields{"addr": cfg.RedisAddr, "queue": rc.Queue()}).Info("redis connected")
	} else {
		logger.Warn("REDIS_ADDR not set; action history is off and logouts are tracked in memory")
	}

	router, err := handlers.NewRouter(gs, handlers.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		AuthRateLimit:  cfg.AuthRateLimit,
		AuthRateBurst:  cfg.AuthRateBurst,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to build router")
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		gs.RunJanitor(janitorCtx, cfg.JanitorInterval, cfg.GameIdleTimeout)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server exited")
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown timed out")
	}

	stopJanitor()
	<-janitorDone
	logger.Info("server stopped")
}

// initAuth loads Ed25519 keys from disk when both paths are set, otherwise
// generates an ephemeral pair. Ephemeral keys log everyone out on restart.
func initAuth(cfg *config.Config) error {
	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		return auth.InitFromPath(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenExpire)
	}
	if cfg.IsProduction() {
		return errors.New("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH are required in production")
	}
	logrus.Warn("using ephemeral session keys")
	return auth.Init(cfg.TokenExpire)
}
