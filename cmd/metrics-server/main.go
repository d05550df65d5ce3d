// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Command metrics-server samples queue and in-flight depths on a fixed
// interval and serves them as Prometheus gauges over net/http.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/northbound/chunkcore/internal/config"
	"github.com/northbound/chunkcore/internal/logger"
	"github.com/northbound/chunkcore/internal/metrics"
)

var (
	httpPort       = flag.Int("http-port", 9090, "metrics HTTP server port")
	sampleInterval = flag.Duration("sample-interval", 15*time.Second, "queue-depth sample interval")
)

func main() {
	if _, err := logger.Init("metrics-server.log"); err != nil {
		logger.Printf("failed to initialize file logger, using stdout only: %v", err)
	}
	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables: %v", err)
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	redisClient, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Fatalf("metrics-server: failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	gauges := metrics.NewGauges()
	keys := metrics.QueueKeys{
		IngestMain:            "ingestion",
		IngestProcessing:      "processing",
		DeleteMain:            "delete_dataset_queue",
		DeleteProcessing:      "delete_dataset_processing",
		FileMain:              "file_ingestion",
		FileProcessing:        "file_processing",
		GroupUpdateMain:       "group_update_queue",
		GroupUpdateProcessing: "group_update_processing",
	}

	go func() {
		ticker := time.NewTicker(*sampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := gauges.Sample(ctx, redisClient, keys); err != nil {
					logger.Printf("metrics-server: sample failed: %v", err)
				}
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", gauges.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", *httpPort), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("metrics-server: listening on :%d", *httpPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("metrics-server: server error: %v", err)
	}
	logger.Printf("metrics-server: shut down")
}
