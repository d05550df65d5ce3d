// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Command pginsert-worker drains bulk_pg_queue, the deferred
// relational-insert queue the ingestion worker feeds when
// BULK_PG_QUEUE=true: the vector points already landed, this process
// writes the matching chunk rows out of band.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/northbound/chunkcore/internal/config"
	"github.com/northbound/chunkcore/internal/events"
	"github.com/northbound/chunkcore/internal/logger"
	"github.com/northbound/chunkcore/internal/pginsert"
	"github.com/northbound/chunkcore/internal/queue"
	"github.com/northbound/chunkcore/internal/retry"
	"github.com/northbound/chunkcore/internal/store/postgres"
)

func main() {
	if _, err := logger.Init("pginsert-worker.log"); err != nil {
		logger.Printf("failed to initialize file logger, using stdout only: %v", err)
	}
	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	redisClient, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Fatalf("pginsert-worker: failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	db, err := config.NewPostgresDB(ctx)
	if err != nil {
		logger.Fatalf("pginsert-worker: failed to connect to postgres: %v", err)
	}
	defer db.Close()

	store, err := postgres.NewStore(ctx, db)
	if err != nil {
		logger.Fatalf("pginsert-worker: failed to initialize relational gateway: %v", err)
	}

	eventSink, err := events.NewSink(db)
	if err != nil {
		logger.Fatalf("pginsert-worker: failed to initialize event sink: %v", err)
	}

	q, err := queue.NewRedisQueue(redisClient, "bulk_pg_queue")
	if err != nil {
		logger.Fatalf("pginsert-worker: failed to open bulk_pg_queue: %v", err)
	}

	logger.Printf("pginsert-worker: starting")
	pginsert.Run(ctx, q, pginsert.Deps{Store: store, Events: eventSink}, retry.PGInsertPolicy)
	logger.Printf("pginsert-worker: shut down")
}
