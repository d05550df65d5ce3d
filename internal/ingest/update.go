// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/textproc"
	"github.com/northbound/chunkcore/internal/vectordb"
)

func handleUpdateRaw(ctx context.Context, deps Deps, raw []byte) error {
	var msg model.UpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("handleUpdateRaw: poison message, dropping: %v", err)
		return nil
	}
	return handleUpdate(ctx, deps, msg)
}

// handleUpdate re-embeds a chunk's content and refreshes both its
// relational row and its vector point. When the chunk shares its vector
// point with another chunk (either side of a collision link, the
// winner included), the payload is left untouched so the shared point's
// metadata is never overwritten by one of its chunks' update.
func handleUpdate(ctx context.Context, deps Deps, msg model.UpdateMessage) error {
	cfg := msg.ServerDatasetConfig
	meta := msg.ChunkMetadata

	content := ""
	if meta.ChunkHTML != nil {
		content = *meta.ChunkHTML
	}
	convert := msg.ConvertHTMLToText == nil || *msg.ConvertHTMLToText
	if convert && content != "" {
		text, err := textproc.HTMLToText(content)
		if err != nil {
			return fmt.Errorf("handleUpdate: failed to convert html: %w", err)
		}
		content = text
	}

	dense, err := deps.Dense.EmbedSingle(ctx, content, cfg)
	if err != nil {
		return fmt.Errorf("handleUpdate: dense embed failed: %w", err)
	}
	sparse, err := sparseVectorFor(ctx, content, msg.BoostPhrase, cfg, deps)
	if err != nil {
		return fmt.Errorf("handleUpdate: sparse embed failed: %w", err)
	}

	pointID, err := deps.Store.GetPointID(ctx, meta.ID)
	if err != nil {
		return fmt.Errorf("handleUpdate: failed to look up point id: %w", err)
	}

	if err := deps.Store.UpdateChunk(ctx, meta, msg.GroupIDs); err != nil {
		return fmt.Errorf("handleUpdate: failed to update relational row: %w", err)
	}

	collision, err := sharesPointWithAnotherChunk(ctx, deps, pointID, meta.ID)
	if err != nil {
		return fmt.Errorf("handleUpdate: failed to check for collision sharing: %w", err)
	}

	var payload *model.VectorPayload
	if !collision {
		groupIDs := msg.GroupIDs
		if groupIDs == nil {
			groupIDs, err = deps.Store.GroupIDsForChunk(ctx, meta.ID)
			if err != nil {
				return fmt.Errorf("handleUpdate: failed to look up group ids: %w", err)
			}
		}
		tagSet, err := deps.Store.GroupTagSetUnion(ctx, groupIDs)
		if err != nil {
			return fmt.Errorf("handleUpdate: failed to look up group tag sets: %w", err)
		}
		p := model.NewVectorPayload(meta, groupIDs, tagSet)
		payload = &p
	}

	req := vectordb.UpdatePointRequest{PointID: pointID, Dense: dense, Sparse: sparse, Payload: payload}
	if err := deps.Vector.UpdatePoint(ctx, req, cfg.EmbeddingSize); err != nil {
		return fmt.Errorf("handleUpdate: failed to update point: %w", err)
	}

	if deps.Events != nil {
		_ = deps.Events.Record(ctx, model.NewChunkUpdated(msg.DatasetID, meta.ID))
	}
	return nil
}

func sharesPointWithAnotherChunk(ctx context.Context, deps Deps, pointID, chunkID uuid.UUID) (bool, error) {
	metas, err := deps.Store.LookupMetadatasByPointIDs(ctx, []uuid.UUID{pointID})
	if err != nil {
		return false, err
	}
	for _, m := range metas {
		if m.ID != chunkID {
			return true, nil
		}
	}
	return false, nil
}
