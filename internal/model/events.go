// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// EventType discriminates the lifecycle events the analytics sink records.
type EventType string

const (
	EventChunksUploaded        EventType = "ChunksUploaded"
	EventChunkUpdated          EventType = "ChunkUpdated"
	EventGroupChunksUpdated    EventType = "GroupChunksUpdated"
	EventGroupChunksActionFailed EventType = "GroupChunksActionFailed"
	EventBulkChunkUploadFailed EventType = "BulkChunkUploadFailed"
	EventBulkChunksDeleted     EventType = "BulkChunksDeleted"
	EventPGInsertFailed        EventType = "PGInsertFailed"
)

// Event is a single analytics-store row describing a job outcome.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	DatasetID uuid.UUID   `json:"dataset_id"`
	Type      EventType   `json:"event_type"`
	ChunkIDs  []uuid.UUID `json:"chunk_ids,omitempty"`
	GroupID   *uuid.UUID  `json:"group_id,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewChunksUploaded builds a ChunksUploaded event.
func NewChunksUploaded(datasetID uuid.UUID, chunkIDs []uuid.UUID) Event {
	return Event{ID: uuid.New(), DatasetID: datasetID, Type: EventChunksUploaded, ChunkIDs: chunkIDs}
}

// NewChunkUpdated builds a ChunkUpdated event.
func NewChunkUpdated(datasetID, chunkID uuid.UUID) Event {
	return Event{ID: uuid.New(), DatasetID: datasetID, Type: EventChunkUpdated, ChunkIDs: []uuid.UUID{chunkID}}
}

// NewGroupChunksUpdated builds a GroupChunksUpdated event.
func NewGroupChunksUpdated(datasetID, groupID uuid.UUID) Event {
	g := groupID
	return Event{ID: uuid.New(), DatasetID: datasetID, Type: EventGroupChunksUpdated, GroupID: &g}
}

// NewGroupChunksActionFailed builds a GroupChunksActionFailed event.
func NewGroupChunksActionFailed(datasetID, groupID uuid.UUID, err error) Event {
	g := groupID
	return Event{ID: uuid.New(), DatasetID: datasetID, Type: EventGroupChunksActionFailed, GroupID: &g, Error: err.Error()}
}

// NewBulkChunkUploadFailed builds a BulkChunkUploadFailed event.
func NewBulkChunkUploadFailed(datasetID uuid.UUID, chunkIDs []uuid.UUID, err error) Event {
	return Event{ID: uuid.New(), DatasetID: datasetID, Type: EventBulkChunkUploadFailed, ChunkIDs: chunkIDs, Error: fmt.Sprintf("Failed to upload %d chunks: %v", len(chunkIDs), err)}
}

// NewBulkChunksDeleted builds a BulkChunksDeleted event.
func NewBulkChunksDeleted(datasetID uuid.UUID, count int) Event {
	return Event{ID: uuid.New(), DatasetID: datasetID, Type: EventBulkChunksDeleted, Message: fmt.Sprintf("Deleted %d chunks", count)}
}

// NewPGInsertFailed builds a PGInsertFailed event: the bulk_pg_queue
// path's vector point already landed, but the deferred relational
// insert for chunkID never did after its own attempt cap was reached.
func NewPGInsertFailed(datasetID, chunkID uuid.UUID, err error) Event {
	return Event{ID: uuid.New(), DatasetID: datasetID, Type: EventPGInsertFailed, ChunkIDs: []uuid.UUID{chunkID}, Error: err.Error()}
}
