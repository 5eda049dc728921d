package main

import (
	"log"
	"net/http"
	"time"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/app"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/config"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/decision"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/httpserver"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/logging"
)

func main() {
	cfg, err := config.LoadDecision()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger, err := logging.New("decision-service", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}

	server := httpserver.NewDecision(decision.NewService(logger), logger)
	app.Serve(&http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}, app.NewGroup(logger), logger)
}
