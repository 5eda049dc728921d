package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/app"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/config"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/coordinator"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/events"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/httpserver"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/logging"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/outbox"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/pricing"
)

func main() {
	cfg, err := config.LoadIntelligence()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger, err := logging.New("intelligence", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, st, err := app.OpenPostgres(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}

	oracle, err := pricing.NewClient(pricing.Config{
		BaseURL:  cfg.Pricing.BaseURL,
		Timeout:  cfg.Pricing.Timeout,
		Retries:  cfg.Pricing.Retries,
		CacheTTL: cfg.Pricing.CacheTTL,
	})
	if err != nil {
		logger.Fatal("pricing client init", zap.Error(err))
	}

	kafkaCfg := app.KafkaConfig(cfg.Kafka)
	publisher, err := events.NewKafkaPublisher(kafkaCfg)
	if err != nil {
		logger.Fatal("kafka publisher init", zap.Error(err))
	}

	group := app.NewGroup(logger)
	group.Close(db)
	group.Close(publisher)

	coord := coordinator.New(st, oracle, coordinator.Config{AvailabilityWindow: cfg.AvailabilityWindow}, logger)
	if err := group.Consume(coord.Subscriptions(), app.KafkaSources(kafkaCfg)); err != nil {
		logger.Fatal("consumer init", zap.Error(err))
	}
	relay := outbox.NewRelay(st, publisher, outbox.Config(cfg.Outbox), logger)
	group.Go("outbox", relay.Run)

	app.Serve(&http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.NewIntelligence(st, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}, group, logger)
}
