// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package deletepipeline is the dataset delete worker: it pages through
// a dataset's chunks in id order, deleting each batch from both the
// relational gateway and the vector index, then optionally drops the
// dataset row itself once every chunk is gone. Batch size comes from
// DELETE_CHUNK_BATCH_SIZE, default 5000.
package deletepipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/errs"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/store/postgres"
)

const defaultBatchSize = 5000

// Store is the subset of the relational gateway the delete handler
// needs, narrowed (as internal/collide already models its own
// dependencies) so tests can supply an in-memory fake instead of
// standing up Postgres. NextChunkBatch still returns the concrete
// postgres.ChunkIDBatch, a plain data struct, not a live-db dependency.
type Store interface {
	DatasetLocked(ctx context.Context, datasetID uuid.UUID) (bool, error)
	NextChunkBatch(ctx context.Context, datasetID, afterID uuid.UUID, batchSize int) ([]postgres.ChunkIDBatch, error)
	DeleteChunkBatch(ctx context.Context, chunkIDs []uuid.UUID) error
	DeleteDataset(ctx context.Context, datasetID uuid.UUID) error
}

// Vector is the subset of the vector gateway the delete handler needs.
type Vector interface {
	DeletePoints(ctx context.Context, collection string, ids []uuid.UUID) error
}

// EventRecorder is the subset of the analytics sink the delete handler
// needs, narrowed for testability as Store and Vector are.
type EventRecorder interface {
	Record(ctx context.Context, e model.Event) error
}

// AnalyticsCleaner drops a dataset's analytics rows (dataset_events,
// search_queries, cluster_topics, search_cluster_memberships) as part of
// a full delete.
type AnalyticsCleaner interface {
	DeleteByDataset(ctx context.Context, datasetID uuid.UUID) error
}

// Deps bundles the gateways the delete handler needs. Analytics may be
// nil when no analytics store is configured.
type Deps struct {
	Store     Store
	Vector    Vector
	Events    EventRecorder
	Analytics AnalyticsCleaner
}

// Handler deserialises a reserved job payload and runs the delete.
func Handler(ctx context.Context, deps Deps, raw []byte) error {
	var msg model.DeleteMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("deletepipeline.Handler: poison message, dropping: %v", err)
		return nil
	}
	return handle(ctx, deps, msg)
}

func handle(ctx context.Context, deps Deps, msg model.DeleteMessage) error {
	locked, err := deps.Store.DatasetLocked(ctx, msg.DatasetID)
	if err != nil {
		return fmt.Errorf("deletepipeline.handle: failed to check dataset lock: %w", err)
	}
	if locked {
		return &errs.BadRequest{Msg: fmt.Sprintf("dataset %s is locked against deletion", msg.DatasetID)}
	}

	collection := msg.Config.VectorName()
	batchSize := batchSizeFromEnv()
	afterID := uuid.UUID{}
	total := 0

	for {
		batch, err := deps.Store.NextChunkBatch(ctx, msg.DatasetID, afterID, batchSize)
		if err != nil {
			return fmt.Errorf("deletepipeline.handle: failed to fetch chunk batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		chunkIDs := make([]uuid.UUID, len(batch))
		pointIDs := make([]uuid.UUID, len(batch))
		for i, b := range batch {
			chunkIDs[i] = b.ChunkID
			pointIDs[i] = b.QdrantPointID
		}

		if collection != "" {
			if err := deps.Vector.DeletePoints(ctx, collection, pointIDs); err != nil {
				return fmt.Errorf("deletepipeline.handle: failed to delete vector points: %w", err)
			}
		}
		if err := deps.Store.DeleteChunkBatch(ctx, chunkIDs); err != nil {
			return fmt.Errorf("deletepipeline.handle: failed to delete chunk batch: %w", err)
		}

		total += len(batch)
		if deps.Events != nil {
			_ = deps.Events.Record(ctx, model.NewBulkChunksDeleted(msg.DatasetID, len(batch)))
		}

		afterID = chunkIDs[len(chunkIDs)-1]
		if len(batch) < batchSize {
			break
		}
	}

	if !msg.EmptyDataset {
		if deps.Analytics != nil {
			if err := deps.Analytics.DeleteByDataset(ctx, msg.DatasetID); err != nil {
				return fmt.Errorf("deletepipeline.handle: failed to clear analytics rows: %w", err)
			}
		}
		if err := deps.Store.DeleteDataset(ctx, msg.DatasetID); err != nil {
			return fmt.Errorf("deletepipeline.handle: failed to delete dataset row: %w", err)
		}
	}

	log.Printf("deletepipeline.handle: deleted %d chunks from dataset %s", total, msg.DatasetID)
	return nil
}

func batchSizeFromEnv() int {
	raw := os.Getenv("DELETE_CHUNK_BATCH_SIZE")
	if raw == "" {
		return defaultBatchSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultBatchSize
	}
	return n
}
