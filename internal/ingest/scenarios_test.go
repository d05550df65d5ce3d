// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/errs"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/vectordb"
)

func freshDeps(arity int) (Deps, *fakeStore, *fakeVector, *fakeDense) {
	store := newFakeStore()
	vector := newFakeVector()
	dense := &fakeDense{arity: arity}
	deps := Deps{Store: store, Vector: vector, Dense: dense, Sparse: &fakeSparse{}}
	return deps, store, vector, dense
}

func bulkMessage(datasetID uuid.UUID, cfg model.ServerDatasetConfiguration, htmlByTrackingID map[string]string) model.BulkUploadMessage {
	msg := model.BulkUploadMessage{DatasetID: datasetID, DatasetConfiguration: cfg}
	for trackingID, html := range htmlByTrackingID {
		html := html
		trackingID := trackingID
		msg.IngestionMessages = append(msg.IngestionMessages, model.IngestionMessage{
			Chunk: model.IngestChunk{ChunkHTML: &html, TrackingID: &trackingID},
			IngestSpecificChunkMetadata: model.IngestSpecificChunkMetadata{
				ID:        uuid.New(),
				DatasetID: datasetID,
			},
		})
	}
	return msg
}

// S1: fresh bulk of 3 distinct chunks produces 3 rows, 3 points and one
// ChunksUploaded event.
func TestScenario_FreshBulkOfThree(t *testing.T) {
	datasetID := uuid.New()
	cfg := model.ServerDatasetConfiguration{EmbeddingSize: 1536, DuplicateDistanceThreshold: 1.0, CollisionsEnabled: false}
	deps, store, vector, _ := freshDeps(1536)

	recorder := &fakeEvents{}
	deps.Events = recorder

	msg := bulkMessage(datasetID, cfg, map[string]string{"a": "<p>hi</p>", "b": "<p>hi</p>", "c": "<p>hi</p>"})
	if err := handleBulkUpload(context.Background(), deps, msg); err != nil {
		t.Fatalf("handleBulkUpload failed: %v", err)
	}

	if len(store.chunks) != 3 {
		t.Errorf("expected 3 chunk rows, got %d", len(store.chunks))
	}
	if len(vector.points) != 3 {
		t.Errorf("expected 3 vector points, got %d", len(vector.points))
	}
	for _, c := range store.chunks {
		if c.ChunkHTML == nil {
			t.Fatalf("chunk %s missing html", c.ID)
		}
	}
	if len(recorder.recorded) != 1 {
		t.Fatalf("expected 1 event, got %d", len(recorder.recorded))
	}
}

// S2: a collision hit links the new chunk to the existing point instead
// of writing a fresh vector; vector point count is unchanged.
func TestScenario_CollisionHit(t *testing.T) {
	datasetID := uuid.New()
	cfg := model.ServerDatasetConfiguration{EmbeddingSize: 1536, DuplicateDistanceThreshold: 0.9, CollisionsEnabled: true}
	deps, store, vector, _ := freshDeps(1536)

	winnerChunkID := uuid.New()
	winnerPointID := uuid.New()
	store.chunks[winnerChunkID] = model.ChunkMetadata{ID: winnerChunkID, DatasetID: datasetID, QdrantPointID: &winnerPointID}
	vector.points[winnerPointID] = vectordb.Point{ID: winnerPointID}
	vector.top1 = vectordb.Top1Match{PointID: winnerPointID, Score: 0.95}
	vector.top1Found = true

	html := "<p>dup</p>"
	trackingID := "dup"
	im := model.IngestionMessage{
		Chunk: model.IngestChunk{ChunkHTML: &html, TrackingID: &trackingID},
		IngestSpecificChunkMetadata: model.IngestSpecificChunkMetadata{
			ID:        uuid.New(),
			DatasetID: datasetID,
		},
	}

	chunkID, err := uploadChunk(context.Background(), im, cfg, deps)
	if err != nil {
		t.Fatalf("uploadChunk failed: %v", err)
	}

	got, ok := store.chunks[chunkID]
	if !ok {
		t.Fatalf("expected chunk row for %s", chunkID)
	}
	if got.QdrantPointID == nil || *got.QdrantPointID != winnerPointID {
		t.Errorf("expected qdrant_point_id %s, got %+v", winnerPointID, got.QdrantPointID)
	}
	if len(vector.points) != 1 {
		t.Errorf("expected vector point count unchanged at 1, got %d", len(vector.points))
	}
}

// S3: a vector upsert failure reverts the relational insert and
// surfaces a retryable error so the worker loop re-queues the job.
func TestScenario_VectorFailureRollback(t *testing.T) {
	datasetID := uuid.New()
	cfg := model.ServerDatasetConfiguration{EmbeddingSize: 1536, DuplicateDistanceThreshold: 1.0}
	deps, store, vector, _ := freshDeps(1536)
	vector.upsertErr = errBoom

	msg := bulkMessage(datasetID, cfg, map[string]string{"a": "<p>hi</p>"})
	err := handleBulkUpload(context.Background(), deps, msg)
	if err == nil {
		t.Fatal("expected vector upsert failure to propagate")
	}
	if len(store.chunks) != 0 {
		t.Errorf("expected relational insert to be reverted, found %d rows", len(store.chunks))
	}
}

// S4: upsert-by-tracking-id replaces an existing chunk's content in
// place, keeping the same chunk id and point id.
func TestScenario_TrackingIDUpsert(t *testing.T) {
	datasetID := uuid.New()
	cfg := model.ServerDatasetConfiguration{EmbeddingSize: 1536, DuplicateDistanceThreshold: 1.0}
	deps, store, _, _ := freshDeps(1536)

	existingID := uuid.New()
	existingPoint := uuid.New()
	trackingID := "k"
	oldHTML := "old"
	store.chunks[existingID] = model.ChunkMetadata{ID: existingID, DatasetID: datasetID, TrackingID: &trackingID, ChunkHTML: &oldHTML, QdrantPointID: &existingPoint}
	store.trackingIDs[trackingID] = existingID

	newHTML := "new"
	im := model.IngestionMessage{
		UpsertByTrackingID: true,
		Chunk:              model.IngestChunk{ChunkHTML: &newHTML, TrackingID: &trackingID},
		IngestSpecificChunkMetadata: model.IngestSpecificChunkMetadata{
			ID:        uuid.New(),
			DatasetID: datasetID,
		},
	}

	chunkID, err := uploadChunk(context.Background(), im, cfg, deps)
	if err != nil {
		t.Fatalf("uploadChunk failed: %v", err)
	}
	if chunkID != existingID {
		t.Errorf("expected same chunk id %s, got %s", existingID, chunkID)
	}
	got := store.chunks[existingID]
	if got.ChunkHTML == nil || *got.ChunkHTML != "new" {
		t.Errorf("expected html replaced with 'new', got %+v", got.ChunkHTML)
	}
	if got.QdrantPointID == nil || *got.QdrantPointID != existingPoint {
		t.Errorf("expected point id unchanged at %s, got %+v", existingPoint, got.QdrantPointID)
	}
}

// S5: a duplicate tracking id under strict (non-upsert) semantics is a
// terminal, non-retryable condition: the caller gets a *errs.DuplicateTrackingID,
// and errs.Retryable must report it as not retryable even after the
// handler's error-wrapping.
func TestScenario_DuplicateTrackingIDStrict(t *testing.T) {
	datasetID := uuid.New()
	cfg := model.ServerDatasetConfiguration{EmbeddingSize: 1536, DuplicateDistanceThreshold: 1.0}
	deps, store, _, _ := freshDeps(1536)

	trackingID := "k"
	oldHTML := "old"
	existingID := uuid.New()
	store.chunks[existingID] = model.ChunkMetadata{ID: existingID, DatasetID: datasetID, TrackingID: &trackingID, ChunkHTML: &oldHTML}
	store.trackingIDs[trackingID] = existingID

	newHTML := "new"
	im := model.IngestionMessage{
		UpsertByTrackingID: false,
		Chunk:              model.IngestChunk{ChunkHTML: &newHTML, TrackingID: &trackingID},
		IngestSpecificChunkMetadata: model.IngestSpecificChunkMetadata{
			ID:        uuid.New(),
			DatasetID: datasetID,
		},
	}

	_, err := uploadChunk(context.Background(), im, cfg, deps)
	if err == nil {
		t.Fatal("expected duplicate tracking id error")
	}
	if errs.Retryable(err) {
		t.Errorf("expected duplicate tracking id error to be non-retryable, got %v", err)
	}
	got := store.chunks[existingID]
	if got.ChunkHTML == nil || *got.ChunkHTML != "old" {
		t.Errorf("expected no row change, got %+v", got.ChunkHTML)
	}
}
