// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"testing"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/model"
)

func TestPayloadToQdrant_RoundTrip(t *testing.T) {
	weight := 0.75
	payload := model.VectorPayload{
		DatasetID: uuid.New(),
		GroupIDs:  []uuid.UUID{uuid.New()},
		Weight:    weight,
	}

	fields, err := payloadToQdrant(payload)
	if err != nil {
		t.Fatalf("payloadToQdrant failed: %v", err)
	}

	if _, ok := fields["dataset_id"]; !ok {
		t.Error("expected dataset_id field")
	}
	if got := fields["weight"].GetDoubleValue(); got != weight {
		t.Errorf("expected weight %v, got %v", weight, got)
	}
	groupList := fields["group_ids"].GetListValue()
	if groupList == nil || len(groupList.Values) != 1 {
		t.Errorf("expected 1 group id in list, got %+v", groupList)
	}
}

func TestSparseToVector(t *testing.T) {
	terms := []model.SparseTerm{{TokenID: 3, Weight: 0.5}, {TokenID: 9, Weight: 0.1}}
	v := sparseToVector(terms)
	if len(v.Data) != 2 || len(v.Indices.Data) != 2 {
		t.Fatalf("unexpected vector shape: %+v", v)
	}
	if v.Indices.Data[0] != 3 || v.Data[0] != 0.5 {
		t.Errorf("unexpected first term: index=%d value=%v", v.Indices.Data[0], v.Data[0])
	}
}

// A bulk batch is partitioned by each point's actual dense length;
// points with an unrecognised length are skipped, not errored, and
// recognised lengths route to their own collections.
func TestGroupByArity_RoutesAndSkips(t *testing.T) {
	ok384 := Point{ID: uuid.New(), Dense: make([]float32, 384)}
	ok1536a := Point{ID: uuid.New(), Dense: make([]float32, 1536)}
	ok1536b := Point{ID: uuid.New(), Dense: make([]float32, 1536)}
	bad := Point{ID: uuid.New(), Dense: make([]float32, 7)}

	byArity, skipped := groupByArity([]Point{ok384, ok1536a, bad, ok1536b})

	if len(skipped) != 1 || skipped[0] != bad.ID {
		t.Fatalf("expected only the 7-length point skipped, got %+v", skipped)
	}
	if len(byArity[384]) != 1 || len(byArity[1536]) != 2 {
		t.Fatalf("unexpected partition: %d in 384, %d in 1536", len(byArity[384]), len(byArity[1536]))
	}
	if byArity[1536][0].ID != ok1536a.ID || byArity[1536][1].ID != ok1536b.ID {
		t.Error("expected input order preserved within an arity group")
	}
}

func TestToQdrantValue_Null(t *testing.T) {
	v := toQdrantValue(nil)
	if v.GetNullValue() != 0 {
		t.Errorf("expected null kind for nil input")
	}
}
