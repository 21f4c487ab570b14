package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/fjod/boutique/orders-service/internal/config"
	"github.com/fjod/boutique/orders-service/internal/consumer"
	ordershttp "github.com/fjod/boutique/orders-service/internal/http"
	"github.com/fjod/boutique/orders-service/internal/publisher"
	"github.com/fjod/boutique/orders-service/internal/repository"
	"github.com/fjod/boutique/orders-service/internal/service"
	"github.com/fjod/boutique/pkg/logger"
	"github.com/fjod/boutique/pkg/tracing"
)

func main() {
	app := &cli.App{
		Name:  "orders-service",
		Usage: "order placement and order read API",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run migrations, then serve the HTTP API and the outbox publisher",
				Action: serve,
			},
			{
				Name:   "notify",
				Usage:  "consume orders.placed and announce new orders",
				Action: notify,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrateOnly,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("orders-service failed")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	tracing.Init()
	return cfg, nil
}

func openRepository(cfg *config.Config) (*repository.Repository, error) {
	creds := cfg.Credentials()
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return nil, err
	}
	if err := repo.RunMigrations(creds); err != nil {
		repo.Close()
		return nil, err
	}
	log.Info("database migrations completed")
	return repo, nil
}

func migrateOnly(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	return repo.Close()
}

func serve(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info("orders-service starting...")

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	var wg sync.WaitGroup
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	defer pollerCancel()

	if cfg.OutboxEnabled {
		poller := publisher.NewOutboxPoller(repo, publisher.NewKafkaWriter(cfg.OutboxTopic, cfg.KafkaBrokers...), cfg.OutboxInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(pollerCtx)
			if err := poller.Close(); err != nil {
				log.WithError(err).Warn("error closing kafka writer")
			}
		}()
		log.WithFields(log.Fields{"topic": cfg.OutboxTopic, "brokers": cfg.KafkaBrokers}).Info("outbox publisher started")
	}

	svc := service.NewOrderService(repo)
	handler := ordershttp.NewOrdersHandler(svc, cfg.RequestTimeout, cfg.MaxRequestBodySize)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      ordershttp.NewRouter(handler, cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("orders-service listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		pollerCancel()
		wg.Wait()
		return err
	}

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	pollerCancel()
	wg.Wait()
	log.Info("server exited")
	return nil
}

func notify(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c := consumer.NewConsumer(
		consumer.NewKafkaReader(cfg.ConsumerGroup, cfg.OutboxTopic, cfg.KafkaBrokers...),
		consumer.LogNotifier{},
	)
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{"topic": cfg.OutboxTopic, "group": cfg.ConsumerGroup}).Info("order notifier started")
	c.Run(ctx)
	log.Info("order notifier stopped")
	return nil
}
