// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/northbound/chunkcore/internal/model"
)

func TestStore_UpsertAndGetGroup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g := model.Group{
		ID:        uuid.New(),
		DatasetID: uuid.New(),
		Name:      "docs",
		TagSet:    []*string{strPtr("manual")},
	}
	if err := s.UpsertGroup(ctx, g); err != nil {
		t.Fatalf("UpsertGroup failed: %v", err)
	}

	g.Name = "docs-v2"
	g.TagSet = []*string{strPtr("manual"), strPtr("guide")}
	if err := s.UpsertGroup(ctx, g); err != nil {
		t.Fatalf("second UpsertGroup failed: %v", err)
	}

	got, err := s.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if got.Name != "docs-v2" {
		t.Errorf("expected replaced name docs-v2, got %s", got.Name)
	}
	if len(got.TagSet) != 2 {
		t.Errorf("expected 2 tags, got %d", len(got.TagSet))
	}
}

func TestStore_GroupTagSetUnionDeduplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	datasetID := uuid.New()
	a := model.Group{ID: uuid.New(), DatasetID: datasetID, Name: "a", TagSet: []*string{strPtr("x"), strPtr("y")}}
	b := model.Group{ID: uuid.New(), DatasetID: datasetID, Name: "b", TagSet: []*string{strPtr("y"), strPtr("z"), nil}}
	if err := s.UpsertGroup(ctx, a); err != nil {
		t.Fatalf("UpsertGroup a failed: %v", err)
	}
	if err := s.UpsertGroup(ctx, b); err != nil {
		t.Fatalf("UpsertGroup b failed: %v", err)
	}

	union, err := s.GroupTagSetUnion(ctx, []uuid.UUID{a.ID, b.ID})
	if err != nil {
		t.Fatalf("GroupTagSetUnion failed: %v", err)
	}
	if len(union) != 3 {
		t.Fatalf("expected deduplicated union of 3 tags, got %d", len(union))
	}

	empty, err := s.GroupTagSetUnion(ctx, nil)
	if err != nil {
		t.Fatalf("GroupTagSetUnion(nil) failed: %v", err)
	}
	if empty != nil {
		t.Errorf("expected nil union for no groups, got %+v", empty)
	}
}

func strPtr(s string) *string { return &s }
