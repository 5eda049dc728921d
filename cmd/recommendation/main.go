package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/app"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/archive"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/config"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/httpserver"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/logging"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/recommendation"
)

func main() {
	cfg, err := config.LoadRecommendation()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger, err := logging.New("recommendation", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, st, err := app.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}

	var archiver archive.Archiver = archive.Noop{}
	if cfg.Archive.Enabled() {
		s3Archiver, err := archive.NewS3Archiver(ctx, archive.S3Config(cfg.Archive))
		if err != nil {
			logger.Fatal("archive init", zap.Error(err))
		}
		archiver = s3Archiver
		logger.Info("archiving recommendations", zap.String("bucket", cfg.Archive.Bucket))
	}

	group := app.NewGroup(logger)
	group.Close(db)

	svc := recommendation.New(st, archiver, recommendation.Config{DefaultResultLimit: cfg.DefaultResultLimit}, logger)
	if err := group.Consume(svc.Subscriptions(), app.KafkaSources(app.KafkaConfig(cfg.Kafka))); err != nil {
		logger.Fatal("consumer init", zap.Error(err))
	}

	app.Serve(&http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.NewRecommendations(svc, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}, group, logger)
}
