// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package model

// ServerDatasetConfiguration is the snapshot of a dataset's ingestion
// configuration embedded in every job envelope. Jobs carry their own copy
// so that in-flight jobs keep the config that was active when they were
// enqueued, even if the dataset's live configuration changes mid-queue.
type ServerDatasetConfiguration struct {
	EmbeddingSize            int     `json:"EMBEDDING_SIZE"`
	DenseEmbeddingURL        string  `json:"DENSE_EMBEDDING_URL,omitempty"`
	DenseEmbeddingAPIKey     string  `json:"DENSE_EMBEDDING_API_KEY,omitempty"`
	SparseEmbeddingURL       string  `json:"SPARSE_EMBEDDING_URL,omitempty"`
	FullTextEnabled          bool    `json:"FULLTEXT_ENABLED"`
	CollisionsEnabled        bool    `json:"COLLISIONS_ENABLED"`
	DuplicateDistanceThreshold float64 `json:"DUPLICATE_DISTANCE_THRESHOLD"`
	Locked                   bool    `json:"LOCKED"`
}

// VectorName returns the Qdrant collection/field name for a dense vector
// of this dataset's configured arity, e.g. "1536_vectors".
func (c ServerDatasetConfiguration) VectorName() string {
	return VectorFieldForArity(c.EmbeddingSize)
}
