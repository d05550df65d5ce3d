// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"testing"
	"time"

	"github.com/northbound/chunkcore/internal/config"
)

func TestReliableQueue_ReserveAck(t *testing.T) {
	ctx := context.Background()
	client, err := config.NewRedisClient(ctx)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	stamp := time.Now().Format("20060102150405.000000000")
	mainKey := "test:reliable:main:" + stamp
	processingKey := "test:reliable:processing:" + stamp
	defer func() {
		client.Del(ctx, mainKey, processingKey)
	}()

	q := NewReliableQueue(client, mainKey, processingKey)

	payload := []byte(`{"dataset_id":"abc"}`)
	if err := q.Enqueue(ctx, payload); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	reserveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got, err := q.Reserve(reserveCtx, time.Second)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("expected %s, got %s", payload, got)
	}

	depth, err := q.ProcessingDepth(ctx)
	if err != nil {
		t.Fatalf("ProcessingDepth failed: %v", err)
	}
	if depth != 1 {
		t.Fatalf("expected processing depth 1, got %d", depth)
	}

	if err := q.Ack(ctx, got); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	depth, err = q.ProcessingDepth(ctx)
	if err != nil {
		t.Fatalf("ProcessingDepth failed: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected processing depth 0 after ack, got %d", depth)
	}
}

func TestReliableQueue_Requeue(t *testing.T) {
	ctx := context.Background()
	client, err := config.NewRedisClient(ctx)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	stamp := time.Now().Format("20060102150405.000000000")
	mainKey := "test:reliable:rq:main:" + stamp
	processingKey := "test:reliable:rq:processing:" + stamp
	defer func() {
		client.Del(ctx, mainKey, processingKey)
	}()

	q := NewReliableQueue(client, mainKey, processingKey)

	payload := []byte(`{"attempt_number":0}`)
	if err := q.Enqueue(ctx, payload); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	reserveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got, err := q.Reserve(reserveCtx, time.Second)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	bumped := []byte(`{"attempt_number":1}`)
	if err := q.Requeue(ctx, got, bumped); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 1 {
		t.Fatalf("expected main depth 1 after requeue, got %d", depth)
	}

	reserveCtx2, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	got2, err := q.Reserve(reserveCtx2, time.Second)
	if err != nil {
		t.Fatalf("Reserve after requeue failed: %v", err)
	}
	if string(got2) != string(bumped) {
		t.Fatalf("expected requeued payload %s, got %s", bumped, got2)
	}
	_ = q.Ack(ctx, got2)
}
