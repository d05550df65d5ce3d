// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/errs"
	"github.com/northbound/chunkcore/internal/model"
)

// GetGroup looks up a group by id.
func (s *Store) GetGroup(ctx context.Context, groupID uuid.UUID) (model.Group, error) {
	var g model.Group
	var description sql.NullString
	var tagSetRaw []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dataset_id, name, description, tag_set, created_at, updated_at
		 FROM groups WHERE id = $1`, groupID,
	)
	if err := row.Scan(&g.ID, &g.DatasetID, &g.Name, &description, &tagSetRaw, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return model.Group{}, &errs.NotFound{Msg: "group not found"}
		}
		return model.Group{}, errs.Wrap("failed to look up group", err)
	}
	if description.Valid {
		g.Description = description.String
	}
	if len(tagSetRaw) > 0 {
		_ = json.Unmarshal(tagSetRaw, &g.TagSet)
	}
	return g, nil
}

// UpsertGroup writes a group row, inserting or replacing its mutable
// fields (name, description, tag set) in place.
func (s *Store) UpsertGroup(ctx context.Context, g model.Group) error {
	tagSetRaw, err := json.Marshal(g.TagSet)
	if err != nil {
		return errs.Wrap("failed to marshal tag set", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO groups (id, dataset_id, name, description, tag_set)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, description = EXCLUDED.description,
		   tag_set = EXCLUDED.tag_set, updated_at = now()`,
		g.ID, g.DatasetID, g.Name, g.Description, tagSetRaw,
	)
	if err != nil {
		return errs.Wrap("failed to upsert group", err)
	}
	return nil
}

// ChunksInGroup returns the ids and point ids of every chunk currently a
// member of groupID, the set the group-update worker refreshes payloads
// for.
func (s *Store) ChunksInGroup(ctx context.Context, groupID uuid.UUID) ([]model.ChunkMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cm.id, cm.dataset_id, cm.tracking_id, cm.chunk_html, cm.link, cm.metadata, cm.time_stamp,
		        cm.location_lat, cm.location_lon, cm.weight, cm.image_urls, cm.tag_set, cm.num_value,
		        cm.qdrant_point_id, cm.created_at, cm.updated_at
		 FROM chunk_metadata cm
		 JOIN chunk_group_memberships m ON m.chunk_id = cm.id
		 WHERE m.group_id = $1`,
		groupID,
	)
	if err != nil {
		return nil, errs.Wrap("failed to list chunks in group", err)
	}
	defer rows.Close()

	var out []model.ChunkMetadata
	for rows.Next() {
		meta, err := scanChunkMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

// GroupTagSetUnion looks up groupIDs and returns the deduplicated union
// of their tag sets, first-occurrence order preserved. Returns nil for
// an empty groupIDs (a chunk with no group memberships carries no
// group-derived tags into its vector payload).
func (s *Store) GroupTagSetUnion(ctx context.Context, groupIDs []uuid.UUID) ([]*string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_set FROM groups WHERE id = ANY($1::uuid[])`,
		uuidArrayParam(groupIDs),
	)
	if err != nil {
		return nil, errs.Wrap("failed to look up group tag sets", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var union []*string
	for rows.Next() {
		var tagSetRaw []byte
		if err := rows.Scan(&tagSetRaw); err != nil {
			return nil, err
		}
		if len(tagSetRaw) == 0 {
			continue
		}
		var tags []*string
		if err := json.Unmarshal(tagSetRaw, &tags); err != nil {
			continue
		}
		for _, tag := range tags {
			if tag == nil {
				continue
			}
			if seen[*tag] {
				continue
			}
			seen[*tag] = true
			union = append(union, tag)
		}
	}
	return union, rows.Err()
}

// GroupIDsForChunk returns the current group memberships of a chunk, so
// the vector payload projection can be recomputed after a membership
// change.
func (s *Store) GroupIDsForChunk(ctx context.Context, chunkID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id FROM chunk_group_memberships WHERE chunk_id = $1`, chunkID)
	if err != nil {
		return nil, errs.Wrap("failed to list group memberships", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var g uuid.UUID
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
