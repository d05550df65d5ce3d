// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// BoostPhrase carries an optional lexical emphasis passed to the sparse
// embedder alongside a chunk's content.
type BoostPhrase struct {
	Phrase          string  `json:"phrase"`
	BoostFactor     float64 `json:"boost_factor"`
}

// IngestChunk is the client-supplied shape of a single chunk within a
// bulk upload or single-upload request.
type IngestChunk struct {
	ChunkHTML         *string          `json:"chunk_html,omitempty"`
	Link              *string          `json:"link,omitempty"`
	TagSet            []string         `json:"tag_set,omitempty"`
	Metadata          json.RawMessage  `json:"metadata,omitempty"`
	TimeStamp         *string          `json:"time_stamp,omitempty"`
	Location          *GeoInfo         `json:"location,omitempty"`
	Weight            *float64         `json:"weight,omitempty"`
	ImageURLs         []string         `json:"image_urls,omitempty"`
	NumValue          *float64         `json:"num_value,omitempty"`
	TrackingID        *string          `json:"tracking_id,omitempty"`
	GroupIDs          []uuid.UUID      `json:"group_ids,omitempty"`
	BoostPhrase       *BoostPhrase     `json:"boost_phrase,omitempty"`
	ConvertHTMLToText *bool            `json:"convert_html_to_text,omitempty"`
	SplitAvg          *bool            `json:"split_avg,omitempty"`
	ChunkVector       []float32        `json:"chunk_vector,omitempty"`
}

// IngestSpecificChunkMetadata carries the identity fields a producer
// assigns before the worker ever sees the chunk.
type IngestSpecificChunkMetadata struct {
	ID            uuid.UUID  `json:"id"`
	DatasetID     uuid.UUID  `json:"dataset_id"`
	QdrantPointID *uuid.UUID `json:"qdrant_point_id,omitempty"`
}

// IngestionMessage is one entry of a BulkUpload envelope.
type IngestionMessage struct {
	Chunk                       IngestChunk                 `json:"chunk"`
	IngestSpecificChunkMetadata IngestSpecificChunkMetadata  `json:"ingest_specific_chunk_metadata"`
	UpsertByTrackingID          bool                         `json:"upsert_by_tracking_id"`
}

// BulkUploadMessage is the job envelope for the bulk ingestion path.
type BulkUploadMessage struct {
	DatasetID             uuid.UUID                  `json:"dataset_id"`
	DatasetConfiguration  ServerDatasetConfiguration  `json:"dataset_configuration"`
	IngestionMessages     []IngestionMessage          `json:"ingestion_messages"`
	AttemptNumber         int                         `json:"attempt_number"`
}

// UpdateMessage is the job envelope for the chunk update path.
type UpdateMessage struct {
	ChunkMetadata       ChunkMetadata               `json:"chunk_metadata"`
	GroupIDs            []uuid.UUID                 `json:"group_ids,omitempty"`
	ConvertHTMLToText   *bool                       `json:"convert_html_to_text,omitempty"`
	BoostPhrase         *BoostPhrase                `json:"boost_phrase,omitempty"`
	DatasetID           uuid.UUID                   `json:"dataset_id"`
	ServerDatasetConfig ServerDatasetConfiguration   `json:"server_dataset_config"`
	AttemptNumber       int                          `json:"attempt_number"`
}

// GroupUpdateMessage is the job envelope for the group-update worker.
type GroupUpdateMessage struct {
	PrevGroup     Group                       `json:"prev_group"`
	Group         Group                       `json:"group"`
	Config        ServerDatasetConfiguration  `json:"config"`
	AttemptNumber int                         `json:"attempt_number"`
}

// DeleteMessage is the job envelope for the dataset delete pipeline.
type DeleteMessage struct {
	DatasetID     uuid.UUID                  `json:"dataset_id"`
	Config        ServerDatasetConfiguration  `json:"config"`
	AttemptNumber int                         `json:"attempt_number"`
	EmptyDataset  bool                        `json:"empty_dataset"`
}

// AttemptNumber reads the attempt_number field common to every job
// envelope without needing to know which concrete message type raw
// decodes to, the generic half of the worker loop's retry bookkeeping.
func AttemptNumber(raw []byte) int {
	var probe struct {
		AttemptNumber int `json:"attempt_number"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0
	}
	return probe.AttemptNumber
}

// BumpAttempt reserializes a job envelope with attempt_number set to
// next, leaving every other field untouched.
func BumpAttempt(raw []byte, next int) (json.RawMessage, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	nextRaw, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	generic["attempt_number"] = nextRaw
	return json.Marshal(generic)
}

// ExtractBulkUploadIDs pulls the dataset id and per-message chunk ids out
// of a raw BulkUpload envelope without needing a typed Update/BulkUpload
// discriminant, used to build a terminal BulkChunkUploadFailed event from
// whatever payload the worker loop handed back on retry exhaustion.
func ExtractBulkUploadIDs(raw []byte) (datasetID uuid.UUID, chunkIDs []uuid.UUID, ok bool) {
	var msg BulkUploadMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return uuid.UUID{}, nil, false
	}
	if len(msg.IngestionMessages) == 0 {
		return uuid.UUID{}, nil, false
	}
	ids := make([]uuid.UUID, len(msg.IngestionMessages))
	for i, m := range msg.IngestionMessages {
		ids[i] = m.IngestSpecificChunkMetadata.ID
	}
	return msg.DatasetID, ids, true
}

// ExtractGroupUpdateIDs pulls the dataset and group id out of a raw
// GroupUpdateMessage envelope for the same reason as ExtractBulkUploadIDs.
func ExtractGroupUpdateIDs(raw []byte) (datasetID, groupID uuid.UUID, ok bool) {
	var msg GroupUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return uuid.UUID{}, uuid.UUID{}, false
	}
	if msg.Group.ID == (uuid.UUID{}) {
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return msg.Group.DatasetID, msg.Group.ID, true
}

// PGInsertQueueMessage is the envelope used by the async relational path
// (BULK_PG_QUEUE=true): the vector point has already been written, and
// this message drives the deferred relational insert.
type PGInsertQueueMessage struct {
	ChunkMetadatas ChunkData                  `json:"chunk_metadatas"`
	DatasetID      uuid.UUID                  `json:"dataset_id"`
	DatasetConfig  ServerDatasetConfiguration  `json:"dataset_config"`
	AttemptNumber  int                         `json:"attempt_number"`
}

// ExtractPGInsertIDs pulls the dataset and chunk id out of a raw
// PGInsertQueueMessage, used to build a terminal PGInsertFailed event
// from a reserved payload without needing the typed envelope.
func ExtractPGInsertIDs(raw []byte) (datasetID, chunkID uuid.UUID, ok bool) {
	var msg PGInsertQueueMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return uuid.UUID{}, uuid.UUID{}, false
	}
	if msg.ChunkMetadatas.ChunkMetadata.ID == (uuid.UUID{}) {
		return uuid.UUID{}, uuid.UUID{}, false
	}
	return msg.DatasetID, msg.ChunkMetadatas.ChunkMetadata.ID, true
}
