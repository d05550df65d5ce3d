// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/errs"
)

// ChunkIDBatch is one page of (chunk id, qdrant point id) pairs, the
// id-ordered paging unit the delete pipeline uses to avoid holding a
// whole dataset's chunk ids in memory at once.
type ChunkIDBatch struct {
	ChunkID       uuid.UUID
	QdrantPointID uuid.UUID
}

// NextChunkBatch returns up to batchSize (chunk id, point id) pairs with
// id greater than afterID, ordered by id, the same cursor-paging shape
// the delete pipeline's dataset-clearing loop walks.
func (s *Store) NextChunkBatch(ctx context.Context, datasetID uuid.UUID, afterID uuid.UUID, batchSize int) ([]ChunkIDBatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, qdrant_point_id FROM chunk_metadata
		 WHERE dataset_id = $1 AND id > $2
		 ORDER BY id LIMIT $3`,
		datasetID, afterID, batchSize,
	)
	if err != nil {
		return nil, errs.Wrap("failed to fetch chunk id batch", err)
	}
	defer rows.Close()

	var out []ChunkIDBatch
	for rows.Next() {
		var b ChunkIDBatch
		if err := rows.Scan(&b.ChunkID, &b.QdrantPointID); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteChunkBatch removes the given chunk rows (and their memberships,
// via the cascading foreign key) from the relational store.
func (s *Store) DeleteChunkBatch(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunk_metadata WHERE id = ANY($1::uuid[])`, uuidArrayParam(ids))
	if err != nil {
		return errs.Wrap("failed to delete chunk batch", err)
	}
	return nil
}

// DatasetLocked reports whether a dataset is locked against deletion.
func (s *Store) DatasetLocked(ctx context.Context, datasetID uuid.UUID) (bool, error) {
	var locked bool
	row := s.db.QueryRowContext(ctx, `SELECT locked FROM datasets WHERE id = $1`, datasetID)
	if err := row.Scan(&locked); err != nil {
		if err == sql.ErrNoRows {
			return false, &errs.NotFound{Msg: "dataset not found"}
		}
		return false, errs.Wrap("failed to check dataset lock", err)
	}
	return locked, nil
}

// SoftDeleteDataset marks a dataset deleted without removing its chunks,
// used by the soft-delete path before the async clear job runs.
func (s *Store) SoftDeleteDataset(ctx context.Context, datasetID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE datasets SET deleted = true WHERE id = $1`, datasetID)
	if err != nil {
		return errs.Wrap("failed to soft-delete dataset", err)
	}
	return nil
}

// DeleteDataset removes the dataset's remaining scoped rows (groups,
// then the dataset row itself), called after its chunks have already
// been cleared.
func (s *Store) DeleteDataset(ctx context.Context, datasetID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE dataset_id = $1`, datasetID); err != nil {
		return errs.Wrap("failed to delete dataset groups", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, datasetID); err != nil {
		return errs.Wrap("failed to delete dataset", err)
	}
	return nil
}

// EnsureDataset inserts a dataset row if absent, used by tests and by
// the bootstrap path so foreign-key-free callers have a row to attach
// chunks to.
func (s *Store) EnsureDataset(ctx context.Context, datasetID uuid.UUID, locked bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, locked) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		datasetID, locked,
	)
	if err != nil {
		return errs.Wrap("failed to ensure dataset", err)
	}
	return nil
}
