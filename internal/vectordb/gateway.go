// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package vectordb is the gateway to the Qdrant index, with one
// collection per supported dense size ("384_vectors", "1536_vectors",
// ...), each carrying a dense field of the same name as the collection
// plus a shared "sparse_vectors" field.
package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/northbound/chunkcore/internal/errs"
	"github.com/northbound/chunkcore/internal/model"
)

// Point is one vector to write: a chunk's dense and sparse embeddings
// plus the filtered-search payload projection.
type Point struct {
	ID      uuid.UUID
	Dense   []float32
	Sparse  []model.SparseTerm
	Payload model.VectorPayload
}

// Gateway is the arity-routed vector store the ingestion, group-update
// and delete workers share.
type Gateway struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
	ensured        map[string]bool
}

// NewGateway builds a Gateway over an established Qdrant gRPC connection.
func NewGateway(conn *grpc.ClientConn) (*Gateway, error) {
	if conn == nil {
		return nil, fmt.Errorf("NewGateway: gRPC connection is required")
	}
	return &Gateway{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
		ensured:        make(map[string]bool),
	}, nil
}

// EnsureCollection creates the "{arity}_vectors" collection if absent,
// with a named dense field (same name as the collection) and a shared
// sparse_vectors field.
func (g *Gateway) EnsureCollection(ctx context.Context, arity int) (string, error) {
	name := model.VectorFieldForArity(arity)
	if name == "" {
		return "", fmt.Errorf("EnsureCollection: unsupported dense arity %d", arity)
	}
	if g.ensured[name] {
		return name, nil
	}

	collections, err := g.collectionsSvc.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return "", fmt.Errorf("EnsureCollection: failed to list collections: %w", err)
	}
	for _, coll := range collections.Collections {
		if coll.Name == name {
			g.ensured[name] = true
			return name, nil
		}
	}

	_, err = g.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_ParamsMap{
				ParamsMap: &qdrant.VectorParamsMap{
					Map: map[string]*qdrant.VectorParams{
						name: {
							Size:     uint64(arity),
							Distance: qdrant.Distance_Cosine,
						},
					},
				},
			},
		},
		SparseVectorsConfig: &qdrant.SparseVectorConfig{
			Map: map[string]*qdrant.SparseVectorParams{
				model.SparseFieldName: {},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("EnsureCollection: failed to create collection %s: %w", name, err)
	}

	log.Printf("EnsureCollection: created collection %s (arity %d)", name, arity)
	g.ensured[name] = true
	return name, nil
}

// groupByArity partitions points by their actual dense vector length
// (which decides the collection each belongs to) and reports the ids of
// any points whose length isn't one of model.SupportedArities. Pulled
// out of BulkUpsert so the partitioning and skip logic is testable
// without a live Qdrant connection.
func groupByArity(points []Point) (byArity map[int][]Point, skipped []uuid.UUID) {
	byArity = make(map[int][]Point)
	for _, p := range points {
		n := len(p.Dense)
		if !model.SupportedArities[n] {
			skipped = append(skipped, p.ID)
			continue
		}
		byArity[n] = append(byArity[n], p)
	}
	return byArity, skipped
}

// BulkUpsert writes or replaces points, routing each to the collection
// matching its own dense vector's length rather than a caller-supplied
// arity. Points whose dense length isn't one of model.SupportedArities
// are skipped and logged, not errored.
func (g *Gateway) BulkUpsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	byArity, skipped := groupByArity(points)
	for _, id := range skipped {
		log.Printf("BulkUpsert: skipping point %s: dense vector length is not a supported arity", id)
	}

	arities := make([]int, 0, len(byArity))
	for arity := range byArity {
		arities = append(arities, arity)
	}
	sort.Ints(arities)

	for _, arity := range arities {
		group := byArity[arity]
		collection, err := g.EnsureCollection(ctx, arity)
		if err != nil {
			return err
		}

		qdrantPoints := make([]*qdrant.PointStruct, len(group))
		for i, p := range group {
			qp, err := toPointStruct(p, collection)
			if err != nil {
				return fmt.Errorf("BulkUpsert: point %s: %w", p.ID, err)
			}
			qdrantPoints[i] = qp
		}

		_, err = g.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qdrantPoints,
		})
		if err != nil {
			return fmt.Errorf("BulkUpsert: failed to upsert %d points into %s: %w", len(group), collection, err)
		}
	}
	return nil
}

// UpdatePointRequest is a partial update: when Payload is nil, only the
// dense/sparse vectors are touched, matching the collision-case call
// that deliberately leaves the shared point's payload untouched.
type UpdatePointRequest struct {
	PointID uuid.UUID
	Dense   []float32
	Sparse  []model.SparseTerm
	Payload *model.VectorPayload
}

// UpdatePoint applies a partial update to an existing point. When the
// update carries a new dense vector, its length must match arity:
// unlike the bulk path, a per-message update rejects a bad length
// outright instead of silently skipping it.
func (g *Gateway) UpdatePoint(ctx context.Context, req UpdatePointRequest, arity int) error {
	if req.Dense != nil && len(req.Dense) != arity {
		return &errs.BadRequest{Msg: fmt.Sprintf("UpdatePoint: dense vector length %d does not match dataset arity %d", len(req.Dense), arity)}
	}

	collection, err := g.EnsureCollection(ctx, arity)
	if err != nil {
		return err
	}

	pointID := &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: req.PointID.String()}}

	if req.Dense != nil || req.Sparse != nil {
		vectors := &qdrant.NamedVectors{Vectors: map[string]*qdrant.Vector{}}
		if req.Dense != nil {
			vectors.Vectors[collection] = &qdrant.Vector{Data: req.Dense}
		}
		if req.Sparse != nil {
			vectors.Vectors[model.SparseFieldName] = sparseToVector(req.Sparse)
		}

		_, err := g.pointsSvc.UpdateVectors(ctx, &qdrant.UpdatePointVectors{
			CollectionName: collection,
			Points: []*qdrant.PointVectors{
				{Id: pointID, Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vectors{Vectors: vectors}}},
			},
		})
		if err != nil {
			return fmt.Errorf("UpdatePoint: failed to update vectors for %s: %w", req.PointID, err)
		}
	}

	if req.Payload != nil {
		payload, err := payloadToQdrant(*req.Payload)
		if err != nil {
			return fmt.Errorf("UpdatePoint: failed to encode payload for %s: %w", req.PointID, err)
		}
		_, err = g.pointsSvc.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: collection,
			Payload:        payload,
			PointsSelector: &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{pointID}}}},
		})
		if err != nil {
			return fmt.Errorf("UpdatePoint: failed to set payload for %s: %w", req.PointID, err)
		}
	}

	return nil
}

// Top1Match is the sole hit returned by an unfiltered collision search.
type Top1Match struct {
	PointID uuid.UUID
	Score   float32
}

// SearchTop1Unfiltered queries the dense field globally, without a
// dataset filter, returning the single best match used by the collision
// detector's threshold gate. found is false when the collection is
// empty.
func (g *Gateway) SearchTop1Unfiltered(ctx context.Context, dense []float32, arity int) (match Top1Match, found bool, err error) {
	collection, err := g.EnsureCollection(ctx, arity)
	if err != nil {
		return Top1Match{}, false, err
	}

	result, err := g.pointsSvc.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         dense,
		VectorName:     &collection,
		Limit:          1,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: false}},
	})
	if err != nil {
		return Top1Match{}, false, fmt.Errorf("SearchTop1Unfiltered: search in %s failed: %w", collection, err)
	}
	if len(result.Result) == 0 {
		return Top1Match{}, false, nil
	}

	top := result.Result[0]
	id, err := uuid.Parse(top.Id.GetUuid())
	if err != nil {
		return Top1Match{}, false, fmt.Errorf("SearchTop1Unfiltered: invalid point id returned: %w", err)
	}
	return Top1Match{PointID: id, Score: top.Score}, true, nil
}

// DeletePoints removes the given point ids from a collection.
func (g *Gateway) DeletePoints(ctx context.Context, collection string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id.String()}}
	}

	_, err := g.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: pointIDs}}},
	})
	if err != nil {
		return fmt.Errorf("DeletePoints: failed to delete %d points from %s: %w", len(ids), collection, err)
	}
	return nil
}

func toPointStruct(p Point, collection string) (*qdrant.PointStruct, error) {
	payload, err := payloadToQdrant(p.Payload)
	if err != nil {
		return nil, err
	}

	vectors := &qdrant.NamedVectors{
		Vectors: map[string]*qdrant.Vector{
			collection:               {Data: p.Dense},
			model.SparseFieldName: sparseToVector(p.Sparse),
		},
	}

	return &qdrant.PointStruct{
		Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: p.ID.String()}},
		Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vectors{Vectors: vectors}},
		Payload: payload,
	}, nil
}

func sparseToVector(terms []model.SparseTerm) *qdrant.Vector {
	data := make([]float32, len(terms))
	indices := make([]uint32, len(terms))
	for i, t := range terms {
		data[i] = t.Weight
		indices[i] = t.TokenID
	}
	return &qdrant.Vector{
		Data:    data,
		Indices: &qdrant.SparseIndices{Data: indices},
	}
}

// payloadToQdrant round-trips the payload through JSON to build a
// qdrant.Value map, so new payload fields never need a manual mapping
// entry here.
func payloadToQdrant(p model.VectorPayload) (map[string]*qdrant.Value, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	out := make(map[string]*qdrant.Value, len(generic))
	for k, v := range generic {
		out[k] = toQdrantValue(v)
	}
	return out, nil
}

func toQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case []interface{}:
		list := make([]*qdrant.Value, len(val))
		for i, item := range val {
			list[i] = toQdrantValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: list}}}
	case map[string]interface{}:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, item := range val {
			fields[k] = toQdrantValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
	}
}
