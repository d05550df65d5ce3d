// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package events is the analytics sink each worker writes lifecycle
// events to (ChunksUploaded, ChunkUpdated, GroupChunksUpdated,
// GroupChunksActionFailed, BulkChunkUploadFailed, BulkChunksDeleted),
// a Postgres-backed store keyed on dataset id.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/logger"
	"github.com/northbound/chunkcore/internal/model"
)

// Sink records job-outcome events for later querying by dataset.
type Sink struct {
	db *sql.DB
}

// NewSink creates a new event sink and ensures its schema exists.
func NewSink(db *sql.DB) (*Sink, error) {
	s := &Sink{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize events schema: %w", err)
	}
	return s, nil
}

func (s *Sink) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS dataset_events (
		id UUID PRIMARY KEY,
		dataset_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		chunk_ids JSONB,
		group_id UUID,
		message TEXT,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_dataset_events_dataset_id ON dataset_events(dataset_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS search_queries (
		id UUID PRIMARY KEY,
		dataset_id UUID NOT NULL,
		query TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS cluster_topics (
		id UUID PRIMARY KEY,
		dataset_id UUID NOT NULL,
		topic TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS search_cluster_memberships (
		id UUID PRIMARY KEY,
		dataset_id UUID NOT NULL,
		search_id UUID NOT NULL,
		cluster_id UUID NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// DeleteByDataset drops every analytics row scoped to a dataset, the
// final step of a full dataset delete (empty_dataset=false). The search
// analytics tables are written by the query surface, not by this core,
// but their rows die with the dataset here.
func (s *Sink) DeleteByDataset(ctx context.Context, datasetID uuid.UUID) error {
	for _, table := range []string{"dataset_events", "search_queries", "cluster_topics", "search_cluster_memberships"} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE dataset_id = $1`, table), datasetID); err != nil {
			return fmt.Errorf("events.DeleteByDataset: failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Record inserts one event row. A failed write is logged and also
// returned; the workers discard the returned error so a lost event
// never fails the job that triggered it.
func (s *Sink) Record(ctx context.Context, e model.Event) error {
	chunkIDs, err := json.Marshal(e.ChunkIDs)
	if err != nil {
		logger.Printf("events.Record: failed to marshal chunk ids for %s event: %v", e.Type, err)
		return fmt.Errorf("events.Record: failed to marshal chunk ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dataset_events (id, dataset_id, event_type, chunk_ids, group_id, message, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.DatasetID, e.Type, chunkIDs, nullableUUID(e.GroupID), e.Message, e.Error,
	)
	if err != nil {
		logger.Printf("events.Record: failed to record %s event for dataset %s: %v", e.Type, e.DatasetID, err)
	}
	return err
}

// RecentByDataset returns the most recent events for a dataset, newest first.
func (s *Sink) RecentByDataset(ctx context.Context, datasetID uuid.UUID, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset_id, event_type, chunk_ids, group_id, message, error
		 FROM dataset_events WHERE dataset_id = $1 ORDER BY created_at DESC LIMIT $2`,
		datasetID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		var chunkIDsRaw []byte
		var groupID uuid.NullUUID
		if err := rows.Scan(&e.ID, &e.DatasetID, &e.Type, &chunkIDsRaw, &groupID, &e.Message, &e.Error); err != nil {
			return nil, err
		}
		if len(chunkIDsRaw) > 0 {
			if err := json.Unmarshal(chunkIDsRaw, &e.ChunkIDs); err != nil {
				return nil, fmt.Errorf("events.RecentByDataset: failed to unmarshal chunk ids: %w", err)
			}
		}
		if groupID.Valid {
			g := groupID.UUID
			e.GroupID = &g
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
