// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/collide"
	"github.com/northbound/chunkcore/internal/embeddings"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/vectordb"
)

func handleBulkUploadRaw(ctx context.Context, deps Deps, raw []byte) error {
	var msg model.BulkUploadMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("handleBulkUploadRaw: poison message, dropping: %v", err)
		return nil
	}
	return handleBulkUpload(ctx, deps, msg)
}

// handleBulkUpload routes a bulk upload envelope to the fast batched path
// or, when any message needs per-chunk handling the batch can't provide,
// the slower fallback path that runs uploadChunk once per message.
func handleBulkUpload(ctx context.Context, deps Deps, msg model.BulkUploadMessage) error {
	cfg := msg.DatasetConfiguration
	if needsFallback(msg.IngestionMessages, cfg) {
		return bulkUploadFallback(ctx, deps, msg, cfg)
	}
	return bulkUploadFast(ctx, deps, msg, cfg)
}

// needsFallback reports whether any message in the batch requires the
// per-message path: a caller-supplied split-average or raw vector,
// upsert-by-tracking-id semantics, or dataset-wide collision detection,
// none of which the one-shot batched embed call can express.
func needsFallback(msgs []model.IngestionMessage, cfg model.ServerDatasetConfiguration) bool {
	if collide.Active(cfg) {
		return true
	}
	for _, im := range msgs {
		if im.UpsertByTrackingID {
			return true
		}
		if im.Chunk.SplitAvg != nil && *im.Chunk.SplitAvg {
			return true
		}
		if len(im.Chunk.ChunkVector) > 0 {
			return true
		}
	}
	return false
}

// bulkUploadFast embeds every message's content in one dense call and one
// sparse call, then writes the relational rows and vector points each in
// a single batch, reverting the relational batch if the vector write
// fails.
func bulkUploadFast(ctx context.Context, deps Deps, msg model.BulkUploadMessage, cfg model.ServerDatasetConfiguration) error {
	prepared := make([]model.ChunkData, 0, len(msg.IngestionMessages))
	for _, im := range msg.IngestionMessages {
		data, err := prepareChunk(im)
		if err != nil {
			log.Printf("bulkUploadFast: dropping unprocessable chunk %s: %v", im.IngestSpecificChunkMetadata.ID, err)
			continue
		}
		prepared = append(prepared, data)
	}
	if len(prepared) == 0 {
		return nil
	}

	contents := make([]string, len(prepared))
	for i, d := range prepared {
		contents[i] = d.Content
	}

	denseVectors, err := deps.Dense.EmbedDense(ctx, contents, cfg)
	if err != nil {
		return fmt.Errorf("bulkUploadFast: dense embed failed: %w", err)
	}

	sparseVectors := make([][]model.SparseTerm, len(prepared))
	if cfg.FullTextEnabled {
		inputs := make([]embeddings.SparseInput, len(prepared))
		for i, d := range prepared {
			inputs[i] = embeddings.SparseInput{Text: d.Content}
		}
		sparseVectors, err = deps.Sparse.EmbedSparse(ctx, inputs, cfg)
		if err != nil {
			return fmt.Errorf("bulkUploadFast: sparse embed failed: %w", err)
		}
	} else {
		for i := range sparseVectors {
			sparseVectors[i] = model.SparseStub()
		}
	}

	indexByChunkID := make(map[uuid.UUID]int, len(prepared))
	for i, d := range prepared {
		pointID := uuid.New()
		prepared[i].ChunkMetadata.QdrantPointID = &pointID
		indexByChunkID[d.ChunkMetadata.ID] = i
	}

	if bulkPGQueueEnabled() && deps.PGQueue != nil {
		return bulkUploadAsyncPG(ctx, deps, msg, cfg, prepared, denseVectors, sparseVectors)
	}

	inserted, err := deps.Store.BulkInsertChunks(ctx, prepared)
	if err != nil {
		return fmt.Errorf("bulkUploadFast: relational insert failed: %w", err)
	}
	if len(inserted) == 0 {
		return nil
	}

	points := make([]vectordb.Point, len(inserted))
	chunkIDs := make([]uuid.UUID, len(inserted))
	tagSetCache := make(map[string][]*string)
	for i, ic := range inserted {
		idx := indexByChunkID[ic.ChunkMetadata.ID]
		tagSet, err := groupTagSetFor(ctx, deps, ic.GroupIDs, tagSetCache)
		if err != nil {
			return fmt.Errorf("bulkUploadFast: failed to look up group tag sets for chunk %s: %w", ic.ChunkMetadata.ID, err)
		}
		payload := model.NewVectorPayload(ic.ChunkMetadata, ic.GroupIDs, tagSet)
		points[i] = vectordb.Point{ID: *ic.ChunkMetadata.QdrantPointID, Dense: denseVectors[idx], Sparse: sparseVectors[idx], Payload: payload}
		chunkIDs[i] = ic.ChunkMetadata.ID
	}

	if err := deps.Vector.BulkUpsert(ctx, points); err != nil {
		log.Printf("bulkUploadFast: vector upsert failed, reverting %d relational inserts: %v", len(chunkIDs), err)
		if revertErr := deps.Store.BulkRevert(ctx, chunkIDs); revertErr != nil {
			log.Printf("bulkUploadFast: revert also failed: %v", revertErr)
		}
		// No BulkChunkUploadFailed event here: this error goes back to the
		// worker loop's retry policy, which re-enqueues the job and only
		// records the terminal failure once the attempt cap is reached.
		return fmt.Errorf("bulkUploadFast: vector upsert failed: %w", err)
	}

	if deps.Events != nil {
		_ = deps.Events.Record(ctx, model.NewChunksUploaded(msg.DatasetID, chunkIDs))
	}
	return nil
}

// bulkUploadAsyncPG is the BULK_PG_QUEUE=true path: vector points are
// written first and the relational insert for each chunk is handed off
// to the pg-insert worker over deps.PGQueue instead of being written
// inline. A chunk is durable in the index as soon as this returns; the
// relational row lands later, out of band, with its own retry policy
// rather than this job's. A failure to enqueue one chunk's relational
// write is logged and does not fail the batch or roll back the vector
// point already written; the point is correct either way, and the
// pg-insert worker's own attempt cap is what ultimately surfaces a
// PGInsertFailed event if the relational write never lands.
func bulkUploadAsyncPG(ctx context.Context, deps Deps, msg model.BulkUploadMessage, cfg model.ServerDatasetConfiguration, prepared []model.ChunkData, denseVectors [][]float32, sparseVectors [][]model.SparseTerm) error {
	points := make([]vectordb.Point, len(prepared))
	tagSetCache := make(map[string][]*string)
	for i, d := range prepared {
		tagSet, err := groupTagSetFor(ctx, deps, d.GroupIDs, tagSetCache)
		if err != nil {
			return fmt.Errorf("bulkUploadAsyncPG: failed to look up group tag sets for chunk %s: %w", d.ChunkMetadata.ID, err)
		}
		payload := model.NewVectorPayload(d.ChunkMetadata, d.GroupIDs, tagSet)
		points[i] = vectordb.Point{ID: *d.ChunkMetadata.QdrantPointID, Dense: denseVectors[i], Sparse: sparseVectors[i], Payload: payload}
	}

	if err := deps.Vector.BulkUpsert(ctx, points); err != nil {
		return fmt.Errorf("bulkUploadAsyncPG: vector upsert failed: %w", err)
	}

	for _, d := range prepared {
		raw, err := json.Marshal(model.PGInsertQueueMessage{ChunkMetadatas: d, DatasetID: msg.DatasetID, DatasetConfig: cfg})
		if err != nil {
			log.Printf("bulkUploadAsyncPG: failed to marshal pg-insert message for chunk %s: %v", d.ChunkMetadata.ID, err)
			continue
		}
		if err := deps.PGQueue.Enqueue(ctx, raw); err != nil {
			log.Printf("bulkUploadAsyncPG: failed to enqueue pg-insert message for chunk %s: %v", d.ChunkMetadata.ID, err)
		}
	}
	return nil
}

// bulkUploadFallback runs the per-message upload path once per chunk,
// preserving collision semantics and caller-supplied vectors that the
// batched path cannot express. The whole message is retried on any
// single chunk's failure; upsert-by-tracking-id makes that safe for the
// messages that require this path.
func bulkUploadFallback(ctx context.Context, deps Deps, msg model.BulkUploadMessage, cfg model.ServerDatasetConfiguration) error {
	var uploaded []uuid.UUID
	var firstErr error

	for _, im := range msg.IngestionMessages {
		chunkID, err := uploadChunk(ctx, im, cfg, deps)
		if err != nil {
			log.Printf("bulkUploadFallback: chunk %s failed: %v", im.IngestSpecificChunkMetadata.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		uploaded = append(uploaded, chunkID)
	}

	if len(uploaded) > 0 && deps.Events != nil {
		_ = deps.Events.Record(ctx, model.NewChunksUploaded(msg.DatasetID, uploaded))
	}
	if firstErr != nil {
		// As in bulkUploadFast, the failure event is recorded once by the
		// worker loop on attempt-cap exhaustion, not on every retryable
		// attempt.
		return fmt.Errorf("bulkUploadFallback: %w", firstErr)
	}
	return nil
}
