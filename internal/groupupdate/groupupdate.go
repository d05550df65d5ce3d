// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package groupupdate is the group-update worker: it consumes
// GroupUpdateMessage envelopes and refreshes the vector payload of every
// chunk in the group with the group's current tag set, so a rename or
// retag surfaces in filtered search without re-embedding anything.
package groupupdate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/vectordb"
)

// Store is the subset of the relational gateway the group-update
// handler needs, narrowed (as internal/collide already models its own
// dependencies) so tests can supply an in-memory fake instead of
// standing up Postgres.
type Store interface {
	ChunksInGroup(ctx context.Context, groupID uuid.UUID) ([]model.ChunkMetadata, error)
	GroupIDsForChunk(ctx context.Context, chunkID uuid.UUID) ([]uuid.UUID, error)
	GroupTagSetUnion(ctx context.Context, groupIDs []uuid.UUID) ([]*string, error)
}

// Vector is the subset of the vector gateway the group-update handler
// needs.
type Vector interface {
	UpdatePoint(ctx context.Context, req vectordb.UpdatePointRequest, arity int) error
}

// EventRecorder is the subset of the analytics sink the group-update
// handler needs, narrowed for testability as Store and Vector are.
type EventRecorder interface {
	Record(ctx context.Context, e model.Event) error
}

// Deps bundles the gateways the group-update handler needs.
type Deps struct {
	Store  Store
	Vector Vector
	Events EventRecorder
}

// Handler deserialises a reserved job payload and runs the group update.
func Handler(ctx context.Context, deps Deps, raw []byte) error {
	var msg model.GroupUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("groupupdate.Handler: poison message, dropping: %v", err)
		return nil
	}
	return handle(ctx, deps, msg)
}

// handle re-reads every chunk currently in the group and updates its
// vector payload with the group's tag set, leaving dense and sparse
// vectors untouched; a retag never needs a re-embed.
func handle(ctx context.Context, deps Deps, msg model.GroupUpdateMessage) error {
	chunks, err := deps.Store.ChunksInGroup(ctx, msg.Group.ID)
	if err != nil {
		return fmt.Errorf("groupupdate.handle: failed to list group members: %w", err)
	}

	for _, chunk := range chunks {
		if chunk.QdrantPointID == nil {
			continue
		}
		groupIDs, err := deps.Store.GroupIDsForChunk(ctx, chunk.ID)
		if err != nil {
			return fmt.Errorf("groupupdate.handle: failed to look up memberships for chunk %s: %w", chunk.ID, err)
		}
		// Recompute the full union rather than reuse msg.Group.TagSet
		// directly: a chunk can belong to several groups, and the payload
		// must reflect all of their tags, not just the one that changed.
		tagSet, err := deps.Store.GroupTagSetUnion(ctx, groupIDs)
		if err != nil {
			return fmt.Errorf("groupupdate.handle: failed to look up group tag sets for chunk %s: %w", chunk.ID, err)
		}
		payload := model.NewVectorPayload(chunk, groupIDs, tagSet)
		req := vectordb.UpdatePointRequest{PointID: *chunk.QdrantPointID, Payload: &payload}
		if err := deps.Vector.UpdatePoint(ctx, req, msg.Config.EmbeddingSize); err != nil {
			return fmt.Errorf("groupupdate.handle: failed to update point for chunk %s: %w", chunk.ID, err)
		}
	}

	if deps.Events != nil {
		_ = deps.Events.Record(ctx, model.NewGroupChunksUpdated(msg.Group.DatasetID, msg.Group.ID))
	}
	return nil
}
