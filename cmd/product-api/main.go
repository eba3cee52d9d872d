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

	"github.com/minicart-io/minicart/internal/config"
	"github.com/minicart-io/minicart/internal/postgres"
	"github.com/minicart-io/minicart/internal/product"
	"github.com/minicart-io/minicart/pkg/pubsub"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Log.Level).With(slog.String("service", "product-api"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Catalog mutations are rare; a scoped connection per publish keeps a
	// failed publish from poisoning anything long-lived.
	publisher := pubsub.NewScopedPublisher(cfg.Rabbit.URL, log)

	svc := product.NewService(product.NewPGStore(pool), publisher, log)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: product.NewAPI(svc, log).Router(),
	}
	go func() {
		log.Info("product api listening", slog.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("product api stopped")
}
