// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package collide implements the collision detector: when a
// dataset enables collisions and sets a duplicate-distance threshold
// below 1.0, every new chunk's dense vector is checked against the
// global index before a fresh point is written, so near-identical
// content collapses onto one vector point instead of duplicating it.
package collide

import (
	"context"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/vectordb"
)

// Searcher is the subset of the vector gateway the detector needs,
// narrowed so tests can supply a fake without standing up Qdrant.
type Searcher interface {
	SearchTop1Unfiltered(ctx context.Context, dense []float32, arity int) (vectordb.Top1Match, bool, error)
}

// MetadataLookup is the subset of the relational gateway needed to
// confirm a collision candidate's metadata before linking to it.
type MetadataLookup interface {
	LookupMetadatasByPointIDs(ctx context.Context, pointIDs []uuid.UUID) ([]model.ChunkMetadata, error)
}

// Result describes whether a candidate collided with an existing point.
type Result struct {
	Collided      bool
	WinnerPointID uuid.UUID
	WinnerMeta    model.ChunkMetadata
}

// Active reports whether collision detection applies for a dataset's
// current configuration.
func Active(cfg model.ServerDatasetConfiguration) bool {
	return cfg.CollisionsEnabled && cfg.DuplicateDistanceThreshold < 1.0
}

// Check runs the global, dataset-unfiltered top-1 search for dense and
// reports a collision when the match's score is at or above the
// dataset's configured threshold. Tie-break: whichever point the index
// returns first; no deterministic secondary ordering is imposed.
func Check(ctx context.Context, searcher Searcher, lookup MetadataLookup, dense []float32, cfg model.ServerDatasetConfiguration) (Result, error) {
	if !Active(cfg) {
		return Result{}, nil
	}

	match, found, err := searcher.SearchTop1Unfiltered(ctx, dense, cfg.EmbeddingSize)
	if err != nil {
		return Result{}, err
	}
	if !found || float64(match.Score) < cfg.DuplicateDistanceThreshold {
		return Result{}, nil
	}

	metas, err := lookup.LookupMetadatasByPointIDs(ctx, []uuid.UUID{match.PointID})
	if err != nil {
		return Result{}, err
	}
	if len(metas) == 0 {
		// The point exists in the vector index but its relational row is
		// gone (e.g. mid-delete); treat as no collision rather than link
		// to metadata we cannot confirm.
		return Result{}, nil
	}

	return Result{Collided: true, WinnerPointID: match.PointID, WinnerMeta: metas[0]}, nil
}
