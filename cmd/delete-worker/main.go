// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Command delete-worker is the delete/clear pipeline process: it
// reserves DeleteMessage envelopes off "delete_dataset_queue" and pages
// a dataset's chunks out of both stores in batches.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/northbound/chunkcore/internal/config"
	"github.com/northbound/chunkcore/internal/deletepipeline"
	"github.com/northbound/chunkcore/internal/events"
	"github.com/northbound/chunkcore/internal/logger"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/queue"
	"github.com/northbound/chunkcore/internal/retry"
	"github.com/northbound/chunkcore/internal/store/postgres"
	"github.com/northbound/chunkcore/internal/vectordb"
	"github.com/northbound/chunkcore/internal/workerloop"
)

var workerCount = flag.Int("worker-count", 2, "number of concurrent delete handlers")

func main() {
	if _, err := logger.Init("delete-worker.log"); err != nil {
		logger.Printf("failed to initialize file logger, using stdout only: %v", err)
	}
	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables: %v", err)
	}
	flag.Parse()

	if n := os.Getenv("WORKER_COUNT"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil && parsed > 0 {
			*workerCount = parsed
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	redisClient, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Fatalf("delete-worker: failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	db, err := config.NewPostgresDB(ctx)
	if err != nil {
		logger.Fatalf("delete-worker: failed to connect to postgres: %v", err)
	}
	defer db.Close()

	store, err := postgres.NewStore(ctx, db)
	if err != nil {
		logger.Fatalf("delete-worker: failed to initialize relational gateway: %v", err)
	}

	qdrantConn, err := config.NewQdrantConn(ctx)
	if err != nil {
		logger.Fatalf("delete-worker: failed to connect to qdrant: %v", err)
	}
	defer qdrantConn.Close()

	vectorGW, err := vectordb.NewGateway(qdrantConn)
	if err != nil {
		logger.Fatalf("delete-worker: failed to initialize vector gateway: %v", err)
	}

	eventSink, err := events.NewSink(db)
	if err != nil {
		logger.Fatalf("delete-worker: failed to initialize event sink: %v", err)
	}

	deps := deletepipeline.Deps{Store: store, Vector: vectorGW, Events: eventSink, Analytics: eventSink}
	q := queue.NewReliableQueue(redisClient, "delete_dataset_queue", "delete_dataset_processing")

	logger.Printf("delete-worker: starting %d workers", *workerCount)
	workerloop.Run(ctx, workerloop.Config{
		Queue: q,
		Handler: func(ctx context.Context, payload []byte) error {
			return deletepipeline.Handler(ctx, deps, payload)
		},
		Policy:         retry.DeletePolicy,
		CurrentAttempt: model.AttemptNumber,
		Bump:           model.BumpAttempt,
		WorkerCount:    *workerCount,
	})
	logger.Printf("delete-worker: shut down")
}
