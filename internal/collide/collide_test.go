// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package collide

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/vectordb"
)

type fakeSearcher struct {
	match vectordb.Top1Match
	found bool
	err   error
}

func (f *fakeSearcher) SearchTop1Unfiltered(ctx context.Context, dense []float32, arity int) (vectordb.Top1Match, bool, error) {
	return f.match, f.found, f.err
}

type fakeLookup struct {
	metas []model.ChunkMetadata
}

func (f *fakeLookup) LookupMetadatasByPointIDs(ctx context.Context, pointIDs []uuid.UUID) ([]model.ChunkMetadata, error) {
	return f.metas, nil
}

func TestCheck_NotActiveWhenCollisionsDisabled(t *testing.T) {
	cfg := model.ServerDatasetConfiguration{CollisionsEnabled: false, DuplicateDistanceThreshold: 0.9}
	result, err := Check(context.Background(), &fakeSearcher{}, &fakeLookup{}, []float32{1}, cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Collided {
		t.Error("expected no collision when collisions disabled")
	}
}

func TestCheck_CollidesAboveThreshold(t *testing.T) {
	pointID := uuid.New()
	cfg := model.ServerDatasetConfiguration{CollisionsEnabled: true, DuplicateDistanceThreshold: 0.9}
	searcher := &fakeSearcher{match: vectordb.Top1Match{PointID: pointID, Score: 0.95}, found: true}
	lookup := &fakeLookup{metas: []model.ChunkMetadata{{ID: uuid.New(), QdrantPointID: &pointID}}}

	result, err := Check(context.Background(), searcher, lookup, []float32{1}, cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Collided || result.WinnerPointID != pointID {
		t.Errorf("expected collision on point %s, got %+v", pointID, result)
	}
}

func TestCheck_BelowThresholdNoCollision(t *testing.T) {
	cfg := model.ServerDatasetConfiguration{CollisionsEnabled: true, DuplicateDistanceThreshold: 0.9}
	searcher := &fakeSearcher{match: vectordb.Top1Match{PointID: uuid.New(), Score: 0.5}, found: true}

	result, err := Check(context.Background(), searcher, &fakeLookup{}, []float32{1}, cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Collided {
		t.Error("expected no collision below threshold")
	}
}

func TestCheck_EmptyIndexNoCollision(t *testing.T) {
	cfg := model.ServerDatasetConfiguration{CollisionsEnabled: true, DuplicateDistanceThreshold: 0.9}
	searcher := &fakeSearcher{found: false}

	result, err := Check(context.Background(), searcher, &fakeLookup{}, []float32{1}, cfg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Collided {
		t.Error("expected no collision on empty index")
	}
}
