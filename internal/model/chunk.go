// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChunkMetadata describes the relational row for a chunk.
type ChunkMetadata struct {
	ID            uuid.UUID       `json:"id"`
	DatasetID     uuid.UUID       `json:"dataset_id"`
	TrackingID    *string         `json:"tracking_id,omitempty"`
	ChunkHTML     *string         `json:"chunk_html,omitempty"`
	Link          *string         `json:"link,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	TimeStamp     *time.Time      `json:"time_stamp,omitempty"`
	Location      *GeoInfo        `json:"location,omitempty"`
	Weight        float64         `json:"weight"`
	ImageURLs     []string        `json:"image_urls,omitempty"`
	TagSet        []*string       `json:"tag_set,omitempty"`
	NumValue      *float64        `json:"num_value,omitempty"`
	QdrantPointID *uuid.UUID      `json:"qdrant_point_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// GeoInfo is a point location attached to a chunk.
type GeoInfo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ChunkData is the precomputed form of a chunk ready for embedding and
// storage: normalised content plus the metadata it will be stored under.
type ChunkData struct {
	ChunkMetadata       ChunkMetadata
	Content             string
	GroupIDs            []uuid.UUID
	UpsertByTrackingID  bool
	BoostPhrase         *string
}

// InsertedChunk is the result of a relational insert, including the group
// ids the row was actually written with.
type InsertedChunk struct {
	ChunkMetadata ChunkMetadata
	GroupIDs      []uuid.UUID
}

// Group is a named, tagged collection of chunks within a dataset.
type Group struct {
	ID          uuid.UUID `json:"id"`
	DatasetID   uuid.UUID `json:"dataset_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	TagSet      []*string `json:"tag_set,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// VectorPayload is the projection of a chunk attached to its vector point
// for filtered search.
type VectorPayload struct {
	DatasetID  uuid.UUID       `json:"dataset_id"`
	GroupIDs   []uuid.UUID     `json:"group_ids,omitempty"`
	TagSet     []*string       `json:"tag_set,omitempty"`
	TimeStamp  *time.Time      `json:"time_stamp,omitempty"`
	Location   *GeoInfo        `json:"location,omitempty"`
	Weight     float64         `json:"weight"`
	NumValue   *float64        `json:"num_value,omitempty"`
	TrackingID *string         `json:"tracking_id,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// NewVectorPayload builds the filtered-search projection for a chunk,
// merging in the union of its groups' tag sets (groupTagSet is the
// pre-deduplicated union; callers look groups up before calling this).
func NewVectorPayload(c ChunkMetadata, groupIDs []uuid.UUID, groupTagSet []*string) VectorPayload {
	return VectorPayload{
		DatasetID:  c.DatasetID,
		GroupIDs:   groupIDs,
		TagSet:     groupTagSet,
		TimeStamp:  c.TimeStamp,
		Location:   c.Location,
		Weight:     c.Weight,
		NumValue:   c.NumValue,
		TrackingID: c.TrackingID,
		Metadata:   c.Metadata,
	}
}
