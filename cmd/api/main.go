package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/devxankit/neargud-sub001/internal/api"
	"github.com/devxankit/neargud-sub001/internal/config"
	"github.com/devxankit/neargud-sub001/internal/database"
	"github.com/devxankit/neargud-sub001/internal/effects"
	"github.com/devxankit/neargud-sub001/internal/external"
	"github.com/devxankit/neargud-sub001/internal/service"
	"github.com/devxankit/neargud-sub001/internal/store"
	"github.com/devxankit/neargud-sub001/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger := telemetry.InitLogger()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	logger.Info("connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := store.New(db)
	queue := effects.NewQueue(cfg.Redis.Addr, cfg.Redis.EffectsQueueKey, cfg.Redis.MaxRetryAttempts, logger)
	defer queue.Close()

	payments := &external.DevPayments{Logger: logger}
	notifier := &external.DevNotifier{Logger: logger}

	orders := service.NewOrderService(repo, repo, payments, notifier, queue, logger, cfg.Marketplace, cfg.Payment)

	go queue.Run(ctx, orders.EffectHandler(), cfg.Redis.RetryInterval)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(api.NewHandler(orders)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		_ = server.Shutdown(context.Background())
	}()

	logger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
