// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Command ingestion-worker reserves BulkUpload/Update envelopes off the
// "ingestion" queue and drives them through internal/ingest, one OS
// process per worker role.
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
	"github.com/northbound/chunkcore/internal/embeddings"
	"github.com/northbound/chunkcore/internal/events"
	"github.com/northbound/chunkcore/internal/ingest"
	"github.com/northbound/chunkcore/internal/logger"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/pginsert"
	"github.com/northbound/chunkcore/internal/queue"
	"github.com/northbound/chunkcore/internal/retry"
	"github.com/northbound/chunkcore/internal/store/postgres"
	"github.com/northbound/chunkcore/internal/vectordb"
	"github.com/northbound/chunkcore/internal/workerloop"
)

var workerCount = flag.Int("worker-count", 5, "number of concurrent ingestion handlers")

func main() {
	if _, err := logger.Init("ingestion-worker.log"); err != nil {
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
		logger.Fatalf("ingestion-worker: failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	db, err := config.NewPostgresDB(ctx)
	if err != nil {
		logger.Fatalf("ingestion-worker: failed to connect to postgres: %v", err)
	}
	defer db.Close()

	store, err := postgres.NewStore(ctx, db)
	if err != nil {
		logger.Fatalf("ingestion-worker: failed to initialize relational gateway: %v", err)
	}

	qdrantConn, err := config.NewQdrantConn(ctx)
	if err != nil {
		logger.Fatalf("ingestion-worker: failed to connect to qdrant: %v", err)
	}
	defer qdrantConn.Close()

	vectorGW, err := vectordb.NewGateway(qdrantConn)
	if err != nil {
		logger.Fatalf("ingestion-worker: failed to initialize vector gateway: %v", err)
	}

	eventSink, err := events.NewSink(db)
	if err != nil {
		logger.Fatalf("ingestion-worker: failed to initialize event sink: %v", err)
	}

	deps := ingest.Deps{
		Store:  store,
		Vector: vectorGW,
		Dense:  embeddings.NewDenseClient(),
		Sparse: embeddings.NewSparseClient(),
		Events: eventSink,
	}

	if os.Getenv("BULK_PG_QUEUE") == "true" {
		pgq, err := queue.NewRedisQueue(redisClient, "bulk_pg_queue")
		if err != nil {
			logger.Fatalf("ingestion-worker: failed to open bulk_pg_queue: %v", err)
		}
		deps.PGQueue = pginsert.Producer{Q: pgq}
		logger.Printf("ingestion-worker: async relational path enabled (bulk_pg_queue)")
	}

	q := queue.NewReliableQueue(redisClient, "ingestion", "processing")

	logger.Printf("ingestion-worker: starting %d workers", *workerCount)
	workerloop.Run(ctx, workerloop.Config{
		Queue: q,
		Handler: func(ctx context.Context, payload []byte) error {
			return ingest.Handler(ctx, deps, payload)
		},
		Policy:         policyFor,
		CurrentAttempt: model.AttemptNumber,
		Bump:           model.BumpAttempt,
		OnTerminal: func(ctx context.Context, payload []byte, handlerErr error) {
			datasetID, chunkIDs, ok := model.ExtractBulkUploadIDs(payload)
			if !ok {
				return
			}
			_ = eventSink.Record(ctx, model.NewBulkChunkUploadFailed(datasetID, chunkIDs, handlerErr))
		},
		WorkerCount: *workerCount,
	})
	logger.Printf("ingestion-worker: shut down")
}

// policyFor applies the BulkUpload policy uniformly; both BulkUpload and
// Update envelopes share the 10-attempt bulk-ingestion cap per spec.md
// §4.12 (only group-update and delete use a tighter cap).
var policyFor = retry.BulkUploadPolicy
