package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/cors"

	"journey-ai/internal/api"
	"journey-ai/internal/config"
	"journey-ai/internal/db"
	"journey-ai/internal/services"
)

func main() {
	cfg := config.Load()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	gateway := services.NewGatewayService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint, cfg.ImageModel)
	plannerService := services.NewPlannerService(gateway, gateway)
	journeyService := services.NewJourneyService(conn)
	reviewService := services.NewReviewService(gateway, conn)
	ingestService := services.NewIngestService(cfg.UploadDir, gateway)

	server := api.NewServer(plannerService, journeyService, reviewService, ingestService)
	server.SetDefaultConcurrency(cfg.Concurrency)

	mux := http.NewServeMux()
	mux.Handle("/api", server.Handler())
	mux.Handle("/api/", server.Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.AllowedOrigins, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("listening on :%s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
