// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package pginsert is the deferred relational-insert worker for the
// BULK_PG_QUEUE=true path: internal/ingest's fast bulk path writes the
// vector point first and hands off the relational row write to this
// worker over bulk_pg_queue, trading insert visibility at ack time for
// not blocking the ingest job on Postgres.
package pginsert

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/errs"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/queue"
	"github.com/northbound/chunkcore/internal/retry"
)

// JobType tags bulk_pg_queue messages inside the queue.Job envelope.
const JobType = "pg_insert"

// Store is the subset of the relational gateway this worker needs,
// narrowed (as internal/collide already models its own dependencies) so
// tests can supply an in-memory fake instead of standing up Postgres.
type Store interface {
	InsertChunk(ctx context.Context, meta model.ChunkMetadata, groupIDs []uuid.UUID, upsertByTrackingID bool) (model.InsertedChunk, error)
}

// EventRecorder is the subset of the analytics sink this worker needs.
type EventRecorder interface {
	Record(ctx context.Context, e model.Event) error
}

// Deps bundles the gateway this worker needs.
type Deps struct {
	Store  Store
	Events EventRecorder
}

// Handler deserialises a reserved bulk_pg_queue payload and runs the
// deferred relational insert for the chunk whose vector point the
// ingestion worker already wrote.
func Handler(ctx context.Context, deps Deps, raw []byte) error {
	var msg model.PGInsertQueueMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("pginsert.Handler: poison message, dropping: %v", err)
		return nil
	}
	return handle(ctx, deps, msg)
}

func handle(ctx context.Context, deps Deps, msg model.PGInsertQueueMessage) error {
	data := msg.ChunkMetadatas
	_, err := deps.Store.InsertChunk(ctx, data.ChunkMetadata, data.GroupIDs, data.UpsertByTrackingID)
	if err != nil {
		return fmt.Errorf("pginsert.handle: failed to insert chunk %s: %w", data.ChunkMetadata.ID, err)
	}

	if deps.Events != nil {
		_ = deps.Events.Record(ctx, model.NewChunksUploaded(msg.DatasetID, []uuid.UUID{data.ChunkMetadata.ID}))
	}
	return nil
}

// Producer is the enqueue side of bulk_pg_queue, wrapping raw
// PGInsertQueueMessage bytes into the queue.Job envelope the consumer
// loop dequeues. The ingestion worker's async path holds one of these as
// its ingest.PGQueue.
type Producer struct {
	Q queue.Queue
}

// Enqueue wraps payload into a typed job and pushes it onto bulk_pg_queue.
func (p Producer) Enqueue(ctx context.Context, payload []byte) error {
	return p.Q.Enqueue(ctx, queue.Job{Type: JobType, Payload: payload, CreatedAt: time.Now()})
}

// Run drains bulk_pg_queue until ctx is cancelled. Unlike the
// reserve/ack workers, this queue has no in-flight list: a dequeued
// message is gone from Redis immediately, and retries are driven by
// re-enqueueing a bumped copy. A worker crash mid-insert loses at most
// the message in hand; the vector point it describes is already
// durable, and re-running the originating bulk upload regenerates the
// relational row.
func Run(ctx context.Context, q queue.Queue, deps Deps, policy retry.Policy) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("pginsert.Run: stopping")
			return
		default:
		}

		job, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("pginsert.Run: dequeue error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Second):
			}
			continue
		}

		handlerErr := Handler(ctx, deps, job.Payload)
		if handlerErr == nil {
			continue
		}
		if !errs.Retryable(handlerErr) {
			log.Printf("pginsert.Run: dropping non-retryable job: %v", handlerErr)
			continue
		}

		nextAttempt := model.AttemptNumber(job.Payload) + 1
		if nextAttempt >= policy.MaxAttempts {
			log.Printf("pginsert.Run: attempt cap %d reached: %v", policy.MaxAttempts, handlerErr)
			if deps.Events != nil {
				if datasetID, chunkID, ok := model.ExtractPGInsertIDs(job.Payload); ok {
					_ = deps.Events.Record(ctx, model.NewPGInsertFailed(datasetID, chunkID, handlerErr))
				}
			}
			continue
		}

		bumped, err := model.BumpAttempt(job.Payload, nextAttempt)
		if err != nil {
			log.Printf("pginsert.Run: failed to bump attempt, dropping: %v", err)
			continue
		}
		log.Printf("pginsert.Run: re-enqueueing after error, attempt=%d: %v", nextAttempt, handlerErr)
		if err := (Producer{Q: q}).Enqueue(ctx, bumped); err != nil {
			log.Printf("pginsert.Run: re-enqueue failed, job lost: %v", err)
		}
	}
}
