package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/app"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/config"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/events"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/httpserver"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/logging"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/outbox"
)

func main() {
	cfg, err := config.LoadPlanner()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger, err := logging.New("planner", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, st, err := app.OpenPostgres(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}

	publisher, err := events.NewKafkaPublisher(app.KafkaConfig(cfg.Kafka))
	if err != nil {
		logger.Fatal("kafka publisher init", zap.Error(err))
	}

	group := app.NewGroup(logger)
	group.Close(db)
	group.Close(publisher)

	relay := outbox.NewRelay(st, publisher, outbox.Config(cfg.Outbox), logger)
	group.Go("outbox", relay.Run)

	planner := httpserver.NewPlanner(st, httpserver.PlannerConfig{WatchInterval: cfg.WatchInterval}, logger)
	app.Serve(&http.Server{
		Addr:              cfg.Addr,
		Handler:           planner.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}, group, logger)
}
