// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/embeddings"
	"github.com/northbound/chunkcore/internal/errs"
	"github.com/northbound/chunkcore/internal/model"
	"github.com/northbound/chunkcore/internal/vectordb"
)

// fakeStore is an in-memory stand-in for postgres.Store, just enough of
// the relational surface for the ingestion handlers' scenarios.
type fakeStore struct {
	chunks        map[uuid.UUID]model.ChunkMetadata
	groupsByChunk map[uuid.UUID][]uuid.UUID
	tagSetByGroup map[uuid.UUID][]*string
	trackingIDs   map[string]uuid.UUID

	insertErr     error
	bulkInsertErr error
	revertedIDs   []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chunks:        make(map[uuid.UUID]model.ChunkMetadata),
		groupsByChunk: make(map[uuid.UUID][]uuid.UUID),
		tagSetByGroup: make(map[uuid.UUID][]*string),
		trackingIDs:   make(map[string]uuid.UUID),
	}
}

func (f *fakeStore) BulkInsertChunks(ctx context.Context, chunks []model.ChunkData) ([]model.InsertedChunk, error) {
	if f.bulkInsertErr != nil {
		return nil, f.bulkInsertErr
	}
	out := make([]model.InsertedChunk, 0, len(chunks))
	for _, c := range chunks {
		f.chunks[c.ChunkMetadata.ID] = c.ChunkMetadata
		f.groupsByChunk[c.ChunkMetadata.ID] = c.GroupIDs
		if c.ChunkMetadata.TrackingID != nil {
			f.trackingIDs[*c.ChunkMetadata.TrackingID] = c.ChunkMetadata.ID
		}
		out = append(out, model.InsertedChunk{ChunkMetadata: c.ChunkMetadata, GroupIDs: c.GroupIDs})
	}
	return out, nil
}

func (f *fakeStore) BulkRevert(ctx context.Context, chunkIDs []uuid.UUID) error {
	f.revertedIDs = append(f.revertedIDs, chunkIDs...)
	for _, id := range chunkIDs {
		delete(f.chunks, id)
	}
	return nil
}

func (f *fakeStore) InsertChunk(ctx context.Context, meta model.ChunkMetadata, groupIDs []uuid.UUID, upsertByTrackingID bool) (model.InsertedChunk, error) {
	if f.insertErr != nil {
		return model.InsertedChunk{}, f.insertErr
	}
	if meta.TrackingID != nil {
		if existingID, ok := f.trackingIDs[*meta.TrackingID]; ok {
			if !upsertByTrackingID {
				return model.InsertedChunk{}, &errs.DuplicateTrackingID{TrackingID: *meta.TrackingID}
			}
			existing := f.chunks[existingID]
			meta.ID = existing.ID
			meta.QdrantPointID = existing.QdrantPointID
		}
	}
	f.chunks[meta.ID] = meta
	f.groupsByChunk[meta.ID] = groupIDs
	if meta.TrackingID != nil {
		f.trackingIDs[*meta.TrackingID] = meta.ID
	}
	return model.InsertedChunk{ChunkMetadata: meta, GroupIDs: groupIDs}, nil
}

func (f *fakeStore) InsertDuplicate(ctx context.Context, meta model.ChunkMetadata, winnerPointID uuid.UUID, groupIDs []uuid.UUID) (model.InsertedChunk, error) {
	meta.QdrantPointID = &winnerPointID
	f.chunks[meta.ID] = meta
	f.groupsByChunk[meta.ID] = groupIDs
	return model.InsertedChunk{ChunkMetadata: meta, GroupIDs: groupIDs}, nil
}

func (f *fakeStore) GetPointID(ctx context.Context, chunkID uuid.UUID) (uuid.UUID, error) {
	c, ok := f.chunks[chunkID]
	if !ok || c.QdrantPointID == nil {
		return uuid.UUID{}, &errs.NotFound{Msg: "chunk has no point id"}
	}
	return *c.QdrantPointID, nil
}

func (f *fakeStore) UpdateChunk(ctx context.Context, meta model.ChunkMetadata, groupIDs []uuid.UUID) error {
	existing, ok := f.chunks[meta.ID]
	if !ok {
		return &errs.NotFound{Msg: "chunk not found"}
	}
	meta.QdrantPointID = existing.QdrantPointID
	f.chunks[meta.ID] = meta
	if groupIDs != nil {
		f.groupsByChunk[meta.ID] = groupIDs
	}
	return nil
}

func (f *fakeStore) LookupMetadatasByPointIDs(ctx context.Context, pointIDs []uuid.UUID) ([]model.ChunkMetadata, error) {
	want := make(map[uuid.UUID]bool, len(pointIDs))
	for _, id := range pointIDs {
		want[id] = true
	}
	var out []model.ChunkMetadata
	for _, c := range f.chunks {
		if c.QdrantPointID != nil && want[*c.QdrantPointID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GroupIDsForChunk(ctx context.Context, chunkID uuid.UUID) ([]uuid.UUID, error) {
	return f.groupsByChunk[chunkID], nil
}

func (f *fakeStore) GroupTagSetUnion(ctx context.Context, groupIDs []uuid.UUID) ([]*string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool)
	var union []*string
	for _, g := range groupIDs {
		for _, tag := range f.tagSetByGroup[g] {
			if tag == nil || seen[*tag] {
				continue
			}
			seen[*tag] = true
			union = append(union, tag)
		}
	}
	return union, nil
}

// fakeVector is an in-memory stand-in for vectordb.Gateway.
type fakeVector struct {
	points       map[uuid.UUID]vectordb.Point
	upsertErr    error
	updateErr    error
	top1         vectordb.Top1Match
	top1Found    bool
	top1Err      error
	lastUpserted []vectordb.Point
}

func newFakeVector() *fakeVector {
	return &fakeVector{points: make(map[uuid.UUID]vectordb.Point)}
}

func (f *fakeVector) BulkUpsert(ctx context.Context, points []vectordb.Point) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.lastUpserted = points
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeVector) UpdatePoint(ctx context.Context, req vectordb.UpdatePointRequest, arity int) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	p := f.points[req.PointID]
	if req.Dense != nil {
		p.Dense = req.Dense
	}
	if req.Sparse != nil {
		p.Sparse = req.Sparse
	}
	if req.Payload != nil {
		p.Payload = *req.Payload
	}
	p.ID = req.PointID
	f.points[req.PointID] = p
	return nil
}

func (f *fakeVector) SearchTop1Unfiltered(ctx context.Context, dense []float32, arity int) (vectordb.Top1Match, bool, error) {
	return f.top1, f.top1Found, f.top1Err
}

// fakeDense is an in-memory stand-in for embeddings.DenseClient.
type fakeDense struct {
	arity int
	err   error
	calls int
}

func (f *fakeDense) EmbedDense(ctx context.Context, texts []string, cfg model.ServerDatasetConfiguration) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.arity)
	}
	return out, nil
}

func (f *fakeDense) EmbedSingle(ctx context.Context, text string, cfg model.ServerDatasetConfiguration) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.arity), nil
}

// fakeSparse is an in-memory stand-in for embeddings.SparseClient.
type fakeSparse struct{}

func (f *fakeSparse) EmbedSparse(ctx context.Context, inputs []embeddings.SparseInput, cfg model.ServerDatasetConfiguration) ([][]model.SparseTerm, error) {
	out := make([][]model.SparseTerm, len(inputs))
	for i := range inputs {
		out[i] = model.SparseStub()
	}
	return out, nil
}

// fakeEvents is an in-memory stand-in for events.Sink.
type fakeEvents struct {
	recorded []model.Event
}

func (f *fakeEvents) Record(ctx context.Context, e model.Event) error {
	f.recorded = append(f.recorded, e)
	return nil
}

func strPtr(s string) *string { return &s }

var errBoom = fmt.Errorf("boom")
