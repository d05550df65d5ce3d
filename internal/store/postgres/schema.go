// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package postgres is the relational gateway: chunk metadata, group
// membership and dataset rows behind database/sql on the pgx stdlib
// driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens the relational gateway's database connection and verifies
// connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Store is the relational gateway: chunk metadata, group
// membership and duplicate-chain bookkeeping.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store over an already-opened database handle
// and ensures its schema exists.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize relational gateway schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS datasets (
		id UUID PRIMARY KEY,
		locked BOOLEAN NOT NULL DEFAULT false,
		deleted BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS groups (
		id UUID PRIMARY KEY,
		dataset_id UUID NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		tag_set JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chunk_metadata (
		id UUID PRIMARY KEY,
		dataset_id UUID NOT NULL,
		tracking_id TEXT,
		chunk_html TEXT,
		link TEXT,
		metadata JSONB,
		time_stamp TIMESTAMPTZ,
		location_lat DOUBLE PRECISION,
		location_lon DOUBLE PRECISION,
		weight DOUBLE PRECISION NOT NULL DEFAULT 0,
		image_urls JSONB,
		tag_set JSONB,
		num_value DOUBLE PRECISION,
		qdrant_point_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_chunk_metadata_dataset_tracking
		ON chunk_metadata(dataset_id, tracking_id) WHERE tracking_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_chunk_metadata_dataset_id ON chunk_metadata(dataset_id, id);
	CREATE INDEX IF NOT EXISTS idx_chunk_metadata_qdrant_point ON chunk_metadata(qdrant_point_id);

	CREATE TABLE IF NOT EXISTS chunk_group_memberships (
		chunk_id UUID NOT NULL REFERENCES chunk_metadata(id) ON DELETE CASCADE,
		group_id UUID NOT NULL,
		PRIMARY KEY (chunk_id, group_id)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
