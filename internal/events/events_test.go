// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package events

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/config"
	"github.com/northbound/chunkcore/internal/model"
)

func TestSink_RecordAndRecentByDataset(t *testing.T) {
	ctx := context.Background()
	db, err := config.NewPostgresDB(ctx)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer db.Close()

	sink, err := NewSink(db)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	datasetID := uuid.New()
	chunkIDs := []uuid.UUID{uuid.New(), uuid.New()}
	ev := model.NewChunksUploaded(datasetID, chunkIDs)

	if err := sink.Record(ctx, ev); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := sink.RecentByDataset(ctx, datasetID, 10)
	if err != nil {
		t.Fatalf("RecentByDataset failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != model.EventChunksUploaded {
		t.Errorf("expected type %s, got %s", model.EventChunksUploaded, got[0].Type)
	}
	if len(got[0].ChunkIDs) != 2 {
		t.Errorf("expected 2 chunk ids, got %d", len(got[0].ChunkIDs))
	}
}

func TestSink_GroupEvent(t *testing.T) {
	ctx := context.Background()
	db, err := config.NewPostgresDB(ctx)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer db.Close()

	sink, err := NewSink(db)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	datasetID := uuid.New()
	groupID := uuid.New()
	ev := model.NewGroupChunksUpdated(datasetID, groupID)

	if err := sink.Record(ctx, ev); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := sink.RecentByDataset(ctx, datasetID, 10)
	if err != nil {
		t.Fatalf("RecentByDataset failed: %v", err)
	}
	if len(got) != 1 || got[0].GroupID == nil || *got[0].GroupID != groupID {
		t.Fatalf("expected group event with group id %s, got %+v", groupID, got)
	}
}
