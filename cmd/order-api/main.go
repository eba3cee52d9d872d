package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minicart-io/minicart/internal/config"
	"github.com/minicart-io/minicart/internal/order"
	"github.com/minicart-io/minicart/internal/outbox"
	"github.com/minicart-io/minicart/internal/postgres"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Log.Level).With(slog.String("service", "order-api"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	svc := order.NewService(
		order.NewPGStore(pool),
		order.NewProductCache(rdb),
		outbox.NewPGRepository(pool),
		postgres.NewTxManager(pool),
		log,
	)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: order.NewAPI(svc, log).Router(),
	}
	go func() {
		log.Info("order api listening", slog.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("order api stopped")
}
