package main

import (
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/app"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/config"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/events"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/httpserver"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/logging"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/pricing"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/simulation"
)

func main() {
	cfg, err := config.LoadSimulation()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger, err := logging.New("simulation-worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
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
	group.Close(publisher)

	worker := simulation.New(oracle, publisher, logger)
	if err := group.Consume(worker.Subscriptions(), app.KafkaSources(kafkaCfg)); err != nil {
		logger.Fatal("consumer init", zap.Error(err))
	}

	app.Serve(&http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.Health("simulation-worker", logger),
		ReadHeaderTimeout: 10 * time.Second,
	}, group, logger)
}
