// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package ingest is the ingestion worker: it consumes BulkUpload
// and Update envelopes off the ingestion queue, normalises and embeds
// chunk content, runs collision detection, and writes the result to
// both the relational gateway and the vector gateway.
package ingest

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/embeddings"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/vectordb"
)

// Store is the subset of the relational gateway the ingestion handlers
// need, narrowed (as internal/collide.MetadataLookup already models) so
// tests can supply an in-memory fake instead of standing up Postgres.
type Store interface {
	BulkInsertChunks(ctx context.Context, chunks []model.ChunkData) ([]model.InsertedChunk, error)
	BulkRevert(ctx context.Context, chunkIDs []uuid.UUID) error
	InsertChunk(ctx context.Context, meta model.ChunkMetadata, groupIDs []uuid.UUID, upsertByTrackingID bool) (model.InsertedChunk, error)
	InsertDuplicate(ctx context.Context, meta model.ChunkMetadata, winnerPointID uuid.UUID, groupIDs []uuid.UUID) (model.InsertedChunk, error)
	GetPointID(ctx context.Context, chunkID uuid.UUID) (uuid.UUID, error)
	UpdateChunk(ctx context.Context, meta model.ChunkMetadata, groupIDs []uuid.UUID) error
	LookupMetadatasByPointIDs(ctx context.Context, pointIDs []uuid.UUID) ([]model.ChunkMetadata, error)
	GroupIDsForChunk(ctx context.Context, chunkID uuid.UUID) ([]uuid.UUID, error)
	GroupTagSetUnion(ctx context.Context, groupIDs []uuid.UUID) ([]*string, error)
}

// Vector is the subset of the vector gateway the ingestion handlers
// need. Its SearchTop1Unfiltered matches collide.Searcher and Store's
// LookupMetadatasByPointIDs matches collide.MetadataLookup, so a
// Deps.Vector/Deps.Store pair can be passed straight through to
// collide.Check without adapting.
type Vector interface {
	BulkUpsert(ctx context.Context, points []vectordb.Point) error
	UpdatePoint(ctx context.Context, req vectordb.UpdatePointRequest, arity int) error
	SearchTop1Unfiltered(ctx context.Context, dense []float32, arity int) (vectordb.Top1Match, bool, error)
}

// DenseEmbedder is the subset of the dense embedding client the
// ingestion handlers need.
type DenseEmbedder interface {
	EmbedDense(ctx context.Context, texts []string, cfg model.ServerDatasetConfiguration) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string, cfg model.ServerDatasetConfiguration) ([]float32, error)
}

// SparseEmbedder is the subset of the sparse embedding client the
// ingestion handlers need.
type SparseEmbedder interface {
	EmbedSparse(ctx context.Context, inputs []embeddings.SparseInput, cfg model.ServerDatasetConfiguration) ([][]model.SparseTerm, error)
}

// EventRecorder is the subset of the analytics sink the ingestion
// handlers need, narrowed for the same reason as Store and Vector: a
// *events.Sink needs a live Postgres connection, and fake-backed tests
// need to assert on the exact event recorded.
type EventRecorder interface {
	Record(ctx context.Context, e model.Event) error
}

// PGQueue is the subset of the bulk_pg_queue producer the ingestion
// handlers need when BULK_PG_QUEUE enables the async relational path:
// the vector point is written first, then a PGInsertQueueMessage is
// enqueued to drive the deferred relational insert out of band.
type PGQueue interface {
	Enqueue(ctx context.Context, payload []byte) error
}

// Deps bundles the gateways and clients the ingestion handlers need;
// entrypoints construct the set once and thread it through every
// handler rather than reaching for globals. PGQueue is nil unless
// BULK_PG_QUEUE is enabled.
type Deps struct {
	Store   Store
	Vector  Vector
	Dense   DenseEmbedder
	Sparse  SparseEmbedder
	Events  EventRecorder
	PGQueue PGQueue
}

// bulkPGQueueEnabled reports whether the async relational path is
// active.
func bulkPGQueueEnabled() bool {
	return os.Getenv("BULK_PG_QUEUE") == "true"
}

// Handler dispatches a reserved job payload to the BulkUpload or Update
// handler based on which envelope shape it deserialises into, matching
// the structural (untagged) union the two job types form on the wire.
func Handler(ctx context.Context, deps Deps, raw []byte) error {
	kind, err := detectEnvelope(raw)
	if err != nil {
		log.Printf("ingest.Handler: poison message, dropping: %v", err)
		return nil
	}

	switch kind {
	case envelopeBulkUpload:
		return handleBulkUploadRaw(ctx, deps, raw)
	case envelopeUpdate:
		return handleUpdateRaw(ctx, deps, raw)
	default:
		log.Printf("ingest.Handler: unrecognised envelope, dropping")
		return nil
	}
}

type envelopeKind int

const (
	envelopeUnknown envelopeKind = iota
	envelopeBulkUpload
	envelopeUpdate
)

func detectEnvelope(raw []byte) (envelopeKind, error) {
	var probe struct {
		IngestionMessages *[]struct{} `json:"ingestion_messages"`
		ChunkMetadata     *struct{}   `json:"chunk_metadata"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return envelopeUnknown, err
	}
	switch {
	case probe.IngestionMessages != nil:
		return envelopeBulkUpload, nil
	case probe.ChunkMetadata != nil:
		return envelopeUpdate, nil
	default:
		return envelopeUnknown, nil
	}
}
