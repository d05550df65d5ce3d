// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/collide"
	"github.com/northbound/chunkcore/internal/embeddings"
	"github.com/northbound/chunkcore/internal/errs"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/textproc"
	"github.com/northbound/chunkcore/internal/vectordb"
)

// prepareChunk normalises a client-supplied chunk into the precomputed
// form the rest of the pipeline works with: HTML stripped to text
// unless disabled, tracking id carried through verbatim, tag set and
// timestamp reshaped into their storage types.
func prepareChunk(im model.IngestionMessage) (model.ChunkData, error) {
	chunk := im.Chunk
	content := ""
	if chunk.ChunkHTML != nil {
		content = *chunk.ChunkHTML
	}

	convert := chunk.ConvertHTMLToText == nil || *chunk.ConvertHTMLToText
	if convert && content != "" {
		text, err := textproc.HTMLToText(content)
		if err != nil {
			return model.ChunkData{}, fmt.Errorf("prepareChunk: failed to convert html: %w", err)
		}
		content = text
	}

	weight := 0.0
	if chunk.Weight != nil {
		weight = *chunk.Weight
	}

	var tagSet []*string
	for _, t := range chunk.TagSet {
		tag := t
		tagSet = append(tagSet, &tag)
	}

	var timeStamp *time.Time
	if chunk.TimeStamp != nil {
		if parsed, err := time.Parse(time.RFC3339, *chunk.TimeStamp); err == nil {
			local := parsed.Local()
			timeStamp = &local
		}
	}

	meta := model.ChunkMetadata{
		ID:            im.IngestSpecificChunkMetadata.ID,
		DatasetID:     im.IngestSpecificChunkMetadata.DatasetID,
		TrackingID:    chunk.TrackingID,
		ChunkHTML:     chunk.ChunkHTML,
		Link:          chunk.Link,
		Metadata:      chunk.Metadata,
		TimeStamp:     timeStamp,
		Location:      chunk.Location,
		Weight:        weight,
		ImageURLs:     chunk.ImageURLs,
		TagSet:        tagSet,
		NumValue:      chunk.NumValue,
		QdrantPointID: im.IngestSpecificChunkMetadata.QdrantPointID,
	}

	var boostPhrase *string
	if chunk.BoostPhrase != nil {
		boostPhrase = &chunk.BoostPhrase.Phrase
	}

	return model.ChunkData{
		ChunkMetadata:      meta,
		Content:            content,
		GroupIDs:           chunk.GroupIDs,
		UpsertByTrackingID: im.UpsertByTrackingID,
		BoostPhrase:        boostPhrase,
	}, nil
}

// denseVectorFor obtains a chunk's dense vector: caller-supplied wins,
// then split-average over coarse sub-chunks, then a direct embed of the
// whole content.
func denseVectorFor(ctx context.Context, chunk model.IngestChunk, content string, cfg model.ServerDatasetConfiguration, deps Deps) ([]float32, error) {
	if len(chunk.ChunkVector) > 0 {
		return chunk.ChunkVector, nil
	}

	if chunk.SplitAvg != nil && *chunk.SplitAvg {
		coarse := textproc.NewCoarseChunker(20).Chunk(content)
		if len(coarse) == 0 {
			coarse = []string{content}
		}
		vectors, err := deps.Dense.EmbedDense(ctx, coarse, cfg)
		if err != nil {
			return nil, fmt.Errorf("denseVectorFor: split-average embed failed: %w", err)
		}
		return textproc.Average(vectors)
	}

	return deps.Dense.EmbedSingle(ctx, content, cfg)
}

// sparseVectorFor obtains a chunk's sparse vector, or the fixed stub when
// full-text search is disabled for the dataset.
func sparseVectorFor(ctx context.Context, content string, boost *model.BoostPhrase, cfg model.ServerDatasetConfiguration, deps Deps) ([]model.SparseTerm, error) {
	if !cfg.FullTextEnabled {
		return model.SparseStub(), nil
	}
	out, err := deps.Sparse.EmbedSparse(ctx, []embeddings.SparseInput{{Text: content, BoostPhrase: boost}}, cfg)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// uploadChunk runs the full per-message path: normalise, embed dense and
// sparse vectors, run collision detection, and write either a duplicate
// row (collision) or a fresh relational row plus vector point
// (non-collision, with compensating revert on vector failure).
func uploadChunk(ctx context.Context, im model.IngestionMessage, cfg model.ServerDatasetConfiguration, deps Deps) (uuid.UUID, error) {
	data, err := prepareChunk(im)
	if err != nil {
		return uuid.UUID{}, err
	}

	dense, err := denseVectorFor(ctx, im.Chunk, data.Content, cfg, deps)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("uploadChunk: dense embed failed: %w", err)
	}
	if !model.SupportedArities[len(dense)] {
		return uuid.UUID{}, &errs.BadRequest{Msg: fmt.Sprintf("uploadChunk: dense vector length %d is not a supported arity", len(dense))}
	}

	sparse, err := sparseVectorFor(ctx, data.Content, im.Chunk.BoostPhrase, cfg, deps)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("uploadChunk: sparse embed failed: %w", err)
	}

	collision, err := collide.Check(ctx, deps.Vector, deps.Store, dense, cfg)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("uploadChunk: collision check failed: %w", err)
	}

	if collision.Collided {
		updateReq := vectordb.UpdatePointRequest{PointID: collision.WinnerPointID, Sparse: sparse}
		if err := deps.Vector.UpdatePoint(ctx, updateReq, cfg.EmbeddingSize); err != nil {
			return uuid.UUID{}, fmt.Errorf("uploadChunk: failed to merge sparse vector into winner point: %w", err)
		}
		inserted, err := deps.Store.InsertDuplicate(ctx, data.ChunkMetadata, collision.WinnerPointID, data.GroupIDs)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("uploadChunk: failed to insert duplicate row: %w", err)
		}
		return inserted.ChunkMetadata.ID, nil
	}

	pointID := uuid.New()
	data.ChunkMetadata.QdrantPointID = &pointID

	inserted, err := deps.Store.InsertChunk(ctx, data.ChunkMetadata, data.GroupIDs, data.UpsertByTrackingID)
	if err != nil {
		return uuid.UUID{}, err
	}

	// A tracking-id upsert that matched an existing row preserves that
	// row's point id instead of the fresh one generated above; write the
	// vector under whichever id InsertChunk actually settled on, or a new
	// point would be orphaned in the index while the stale one never gets
	// the new embedding.
	if inserted.ChunkMetadata.QdrantPointID != nil {
		pointID = *inserted.ChunkMetadata.QdrantPointID
	}

	tagSet, err := groupTagSetFor(ctx, deps, inserted.GroupIDs, make(map[string][]*string))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("uploadChunk: failed to look up group tag sets: %w", err)
	}
	payload := model.NewVectorPayload(inserted.ChunkMetadata, inserted.GroupIDs, tagSet)
	point := vectordb.Point{ID: pointID, Dense: dense, Sparse: sparse, Payload: payload}
	if err := deps.Vector.BulkUpsert(ctx, []vectordb.Point{point}); err != nil {
		log.Printf("uploadChunk: vector upsert failed, reverting relational insert for chunk %s: %v", inserted.ChunkMetadata.ID, err)
		if revertErr := deps.Store.BulkRevert(ctx, []uuid.UUID{inserted.ChunkMetadata.ID}); revertErr != nil {
			log.Printf("uploadChunk: revert also failed for chunk %s: %v", inserted.ChunkMetadata.ID, revertErr)
		}
		return uuid.UUID{}, fmt.Errorf("uploadChunk: failed to upsert vector point: %w", err)
	}

	return inserted.ChunkMetadata.ID, nil
}
