// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/northbound/chunkcore/internal/errs"
	"github.com/northbound/chunkcore/internal/model"
)

// InsertChunk inserts a single chunk row and its group memberships.
// When upsertByTrackingID is set and the dataset already has a row with
// this tracking id, the existing row is replaced in place, preserving
// its qdrant_point_id; otherwise a conflicting tracking id surfaces as
// errs.DuplicateTrackingID.
func (s *Store) InsertChunk(ctx context.Context, meta model.ChunkMetadata, groupIDs []uuid.UUID, upsertByTrackingID bool) (model.InsertedChunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.InsertedChunk{}, errs.Wrap("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if upsertByTrackingID && meta.TrackingID != nil {
		var existingID, existingPointID uuid.UUID
		row := tx.QueryRowContext(ctx,
			`SELECT id, qdrant_point_id FROM chunk_metadata WHERE dataset_id = $1 AND tracking_id = $2`,
			meta.DatasetID, *meta.TrackingID,
		)
		switch err := row.Scan(&existingID, &existingPointID); err {
		case nil:
			meta.ID = existingID
			pid := existingPointID
			meta.QdrantPointID = &pid
			if err := s.updateChunkRowTx(ctx, tx, meta); err != nil {
				return model.InsertedChunk{}, err
			}
			if err := s.replaceMembershipsTx(ctx, tx, meta.ID, groupIDs); err != nil {
				return model.InsertedChunk{}, err
			}
			if err := tx.Commit(); err != nil {
				return model.InsertedChunk{}, errs.Wrap("failed to commit", err)
			}
			return model.InsertedChunk{ChunkMetadata: meta, GroupIDs: groupIDs}, nil
		case sql.ErrNoRows:
			// fall through to plain insert
		default:
			return model.InsertedChunk{}, errs.Wrap("failed to look up existing tracking id", err)
		}
	}

	if err := s.insertChunkRowTx(ctx, tx, meta); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			trackingID := ""
			if meta.TrackingID != nil {
				trackingID = *meta.TrackingID
			}
			return model.InsertedChunk{}, &errs.DuplicateTrackingID{TrackingID: trackingID}
		}
		return model.InsertedChunk{}, errs.Wrap("failed to insert chunk", err)
	}
	if err := s.insertMembershipsTx(ctx, tx, meta.ID, groupIDs); err != nil {
		return model.InsertedChunk{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.InsertedChunk{}, errs.Wrap("failed to commit", err)
	}
	return model.InsertedChunk{ChunkMetadata: meta, GroupIDs: groupIDs}, nil
}

// BulkInsertChunks inserts a batch of chunks in one transaction,
// de-duplicating by (dataset_id, tracking_id) both within the batch and
// against existing rows. Only the subset actually inserted is returned;
// callers compare len(result) against len(input) to detect collisions.
func (s *Store) BulkInsertChunks(ctx context.Context, chunks []model.ChunkData) ([]model.InsertedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	seenTracking := make(map[string]bool)
	var out []model.InsertedChunk

	for _, c := range chunks {
		meta := c.ChunkMetadata
		if meta.TrackingID != nil {
			key := meta.DatasetID.String() + "/" + *meta.TrackingID
			if seenTracking[key] {
				continue
			}
			seenTracking[key] = true

			var exists bool
			row := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM chunk_metadata WHERE dataset_id = $1 AND tracking_id = $2)`,
				meta.DatasetID, *meta.TrackingID,
			)
			if err := row.Scan(&exists); err != nil {
				return nil, errs.Wrap("failed to check existing tracking id", err)
			}
			if exists {
				continue
			}
		}

		if err := s.insertChunkRowTx(ctx, tx, meta); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				continue
			}
			return nil, errs.Wrap("failed to bulk insert chunk", err)
		}
		if err := s.insertMembershipsTx(ctx, tx, meta.ID, c.GroupIDs); err != nil {
			return nil, err
		}
		out = append(out, model.InsertedChunk{ChunkMetadata: meta, GroupIDs: c.GroupIDs})
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap("failed to commit bulk insert", err)
	}
	return out, nil
}

// BulkRevert deletes the given chunk rows, the compensating action taken
// when a relational insert succeeds but the matching vector upsert
// fails.
func (s *Store) BulkRevert(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunk_metadata WHERE id = ANY($1::uuid[])`, uuidArrayParam(ids))
	if err != nil {
		return errs.Wrap("failed to revert chunk inserts", err)
	}
	return nil
}

// InsertDuplicate inserts a chunk row that shares an existing winner's
// qdrant_point_id, recording a collision instead of a fresh vector.
func (s *Store) InsertDuplicate(ctx context.Context, meta model.ChunkMetadata, winnerPointID uuid.UUID, groupIDs []uuid.UUID) (model.InsertedChunk, error) {
	meta.QdrantPointID = &winnerPointID
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.InsertedChunk{}, errs.Wrap("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertChunkRowTx(ctx, tx, meta); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			trackingID := ""
			if meta.TrackingID != nil {
				trackingID = *meta.TrackingID
			}
			return model.InsertedChunk{}, &errs.DuplicateTrackingID{TrackingID: trackingID}
		}
		return model.InsertedChunk{}, errs.Wrap("failed to insert duplicate chunk", err)
	}
	if err := s.insertMembershipsTx(ctx, tx, meta.ID, groupIDs); err != nil {
		return model.InsertedChunk{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.InsertedChunk{}, errs.Wrap("failed to commit", err)
	}
	return model.InsertedChunk{ChunkMetadata: meta, GroupIDs: groupIDs}, nil
}

// UpdateChunk overwrites a chunk's mutable fields and, when groupIDs is
// non-nil, replaces its group memberships.
func (s *Store) UpdateChunk(ctx context.Context, meta model.ChunkMetadata, groupIDs []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.updateChunkRowTx(ctx, tx, meta); err != nil {
		return err
	}
	if groupIDs != nil {
		if err := s.replaceMembershipsTx(ctx, tx, meta.ID, groupIDs); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap("failed to commit update", err)
	}
	return nil
}

// GetPointID returns the qdrant point id a chunk is stored under.
func (s *Store) GetPointID(ctx context.Context, chunkID uuid.UUID) (uuid.UUID, error) {
	var pointID uuid.UUID
	row := s.db.QueryRowContext(ctx, `SELECT qdrant_point_id FROM chunk_metadata WHERE id = $1`, chunkID)
	if err := row.Scan(&pointID); err != nil {
		if err == sql.ErrNoRows {
			return uuid.UUID{}, &errs.NotFound{Msg: fmt.Sprintf("chunk %s not found", chunkID)}
		}
		return uuid.UUID{}, errs.Wrap("failed to look up point id", err)
	}
	return pointID, nil
}

// LookupMetadatasByPointIDs returns the chunk rows stored under the
// given qdrant point ids, used to confirm a collision candidate before
// linking it to an existing point.
func (s *Store) LookupMetadatasByPointIDs(ctx context.Context, pointIDs []uuid.UUID) ([]model.ChunkMetadata, error) {
	if len(pointIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset_id, tracking_id, chunk_html, link, metadata, time_stamp,
		        location_lat, location_lon, weight, image_urls, tag_set, num_value,
		        qdrant_point_id, created_at, updated_at
		 FROM chunk_metadata WHERE qdrant_point_id = ANY($1::uuid[])`,
		uuidArrayParam(pointIDs),
	)
	if err != nil {
		return nil, errs.Wrap("failed to look up metadatas by point ids", err)
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

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChunkMetadata(row scanner) (model.ChunkMetadata, error) {
	var m model.ChunkMetadata
	var trackingID, chunkHTML, link sql.NullString
	var metadataRaw, imageURLsRaw, tagSetRaw []byte
	var timeStamp sql.NullTime
	var lat, lon, numValue sql.NullFloat64

	err := row.Scan(
		&m.ID, &m.DatasetID, &trackingID, &chunkHTML, &link, &metadataRaw, &timeStamp,
		&lat, &lon, &m.Weight, &imageURLsRaw, &tagSetRaw, &numValue,
		&m.QdrantPointID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return model.ChunkMetadata{}, errs.Wrap("failed to scan chunk metadata row", err)
	}

	if trackingID.Valid {
		m.TrackingID = &trackingID.String
	}
	if chunkHTML.Valid {
		m.ChunkHTML = &chunkHTML.String
	}
	if link.Valid {
		m.Link = &link.String
	}
	if len(metadataRaw) > 0 {
		m.Metadata = json.RawMessage(metadataRaw)
	}
	if timeStamp.Valid {
		ts := timeStamp.Time
		m.TimeStamp = &ts
	}
	if lat.Valid && lon.Valid {
		m.Location = &model.GeoInfo{Lat: lat.Float64, Lon: lon.Float64}
	}
	if numValue.Valid {
		nv := numValue.Float64
		m.NumValue = &nv
	}
	if len(imageURLsRaw) > 0 {
		_ = json.Unmarshal(imageURLsRaw, &m.ImageURLs)
	}
	if len(tagSetRaw) > 0 {
		_ = json.Unmarshal(tagSetRaw, &m.TagSet)
	}
	return m, nil
}

func (s *Store) insertChunkRowTx(ctx context.Context, tx *sql.Tx, m model.ChunkMetadata) error {
	metadataRaw, imageURLsRaw, tagSetRaw, lat, lon, err := encodeChunkFields(m)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chunk_metadata
		 (id, dataset_id, tracking_id, chunk_html, link, metadata, time_stamp,
		  location_lat, location_lon, weight, image_urls, tag_set, num_value, qdrant_point_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		m.ID, m.DatasetID, m.TrackingID, m.ChunkHTML, m.Link, metadataRaw, m.TimeStamp,
		lat, lon, m.Weight, imageURLsRaw, tagSetRaw, m.NumValue, m.QdrantPointID,
	)
	return err
}

func (s *Store) updateChunkRowTx(ctx context.Context, tx *sql.Tx, m model.ChunkMetadata) error {
	metadataRaw, imageURLsRaw, tagSetRaw, lat, lon, err := encodeChunkFields(m)
	if err != nil {
		return errs.Wrap("failed to encode chunk fields", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE chunk_metadata SET
		   tracking_id = $2, chunk_html = $3, link = $4, metadata = $5, time_stamp = $6,
		   location_lat = $7, location_lon = $8, weight = $9, image_urls = $10,
		   tag_set = $11, num_value = $12, updated_at = now()
		 WHERE id = $1`,
		m.ID, m.TrackingID, m.ChunkHTML, m.Link, metadataRaw, m.TimeStamp,
		lat, lon, m.Weight, imageURLsRaw, tagSetRaw, m.NumValue,
	)
	if err != nil {
		return errs.Wrap("failed to update chunk row", err)
	}
	return nil
}

func encodeChunkFields(m model.ChunkMetadata) (metadataRaw, imageURLsRaw, tagSetRaw []byte, lat, lon interface{}, err error) {
	if len(m.Metadata) > 0 {
		metadataRaw = m.Metadata
	}
	if len(m.ImageURLs) > 0 {
		if imageURLsRaw, err = json.Marshal(m.ImageURLs); err != nil {
			return
		}
	}
	if len(m.TagSet) > 0 {
		if tagSetRaw, err = json.Marshal(m.TagSet); err != nil {
			return
		}
	}
	if m.Location != nil {
		lat, lon = m.Location.Lat, m.Location.Lon
	}
	return
}

func (s *Store) insertMembershipsTx(ctx context.Context, tx *sql.Tx, chunkID uuid.UUID, groupIDs []uuid.UUID) error {
	for _, g := range groupIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_group_memberships (chunk_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			chunkID, g,
		); err != nil {
			return errs.Wrap("failed to insert group membership", err)
		}
	}
	return nil
}

func (s *Store) replaceMembershipsTx(ctx context.Context, tx *sql.Tx, chunkID uuid.UUID, groupIDs []uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_group_memberships WHERE chunk_id = $1`, chunkID); err != nil {
		return errs.Wrap("failed to clear group memberships", err)
	}
	return s.insertMembershipsTx(ctx, tx, chunkID, groupIDs)
}

// uuidArrayParam renders a []uuid.UUID for binding against a Postgres
// uuid[] parameter via the pgx stdlib driver's text-array format.
func uuidArrayParam(ids []uuid.UUID) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return "{" + strings.Join(strs, ",") + "}"
}
