// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Command groupupdate-worker is the group-update worker process: it
// reserves GroupUpdateMessage envelopes off "group_update_queue" and
// re-applies a group's tag set onto its members' vector payloads.
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
	"github.com/northbound/chunkcore/internal/events"
	"github.com/northbound/chunkcore/internal/groupupdate"
	"github.com/northbound/chunkcore/internal/logger"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/queue"
	"github.com/northbound/chunkcore/internal/retry"
	"github.com/northbound/chunkcore/internal/store/postgres"
	"github.com/northbound/chunkcore/internal/vectordb"
	"github.com/northbound/chunkcore/internal/workerloop"
)

var workerCount = flag.Int("worker-count", 3, "number of concurrent group-update handlers")

func main() {
	if _, err := logger.Init("groupupdate-worker.log"); err != nil {
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
		logger.Fatalf("groupupdate-worker: failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	db, err := config.NewPostgresDB(ctx)
	if err != nil {
		logger.Fatalf("groupupdate-worker: failed to connect to postgres: %v", err)
	}
	defer db.Close()

	store, err := postgres.NewStore(ctx, db)
	if err != nil {
		logger.Fatalf("groupupdate-worker: failed to initialize relational gateway: %v", err)
	}

	qdrantConn, err := config.NewQdrantConn(ctx)
	if err != nil {
		logger.Fatalf("groupupdate-worker: failed to connect to qdrant: %v", err)
	}
	defer qdrantConn.Close()

	vectorGW, err := vectordb.NewGateway(qdrantConn)
	if err != nil {
		logger.Fatalf("groupupdate-worker: failed to initialize vector gateway: %v", err)
	}

	eventSink, err := events.NewSink(db)
	if err != nil {
		logger.Fatalf("groupupdate-worker: failed to initialize event sink: %v", err)
	}

	deps := groupupdate.Deps{Store: store, Vector: vectorGW, Events: eventSink}
	q := queue.NewReliableQueue(redisClient, "group_update_queue", "group_update_processing")

	logger.Printf("groupupdate-worker: starting %d workers", *workerCount)
	workerloop.Run(ctx, workerloop.Config{
		Queue: q,
		Handler: func(ctx context.Context, payload []byte) error {
			return groupupdate.Handler(ctx, deps, payload)
		},
		Policy:         retry.GroupUpdatePolicy,
		CurrentAttempt: model.AttemptNumber,
		Bump:           model.BumpAttempt,
		OnTerminal: func(ctx context.Context, payload []byte, handlerErr error) {
			datasetID, groupID, ok := model.ExtractGroupUpdateIDs(payload)
			if !ok {
				return
			}
			_ = eventSink.Record(ctx, model.NewGroupChunksActionFailed(datasetID, groupID, handlerErr))
		},
		WorkerCount: *workerCount,
	})
	logger.Printf("groupupdate-worker: shut down")
}
