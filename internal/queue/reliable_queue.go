// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReliableQueue is a Redis list-backed queue with an explicit reservation
// step: Reserve moves a message onto a processing list atomically so a
// worker that crashes mid-handler leaves the message recoverable instead
// of lost, matching the BRPOPLPUSH/LREM/LPUSH pattern the ingestion,
// group-update and delete workers all use against their own named queue
// pairs (ingestion/processing, group_update_queue/group_update_processing,
// and so on).
type ReliableQueue struct {
	client     *redis.Client
	mainKey    string
	processingKey string
}

// NewReliableQueue wraps a Redis client around one main/processing list
// pair. mainKey is where producers RPush new work; processingKey is
// where Reserve parks a message until Ack or Requeue resolves it.
func NewReliableQueue(client *redis.Client, mainKey, processingKey string) *ReliableQueue {
	return &ReliableQueue{client: client, mainKey: mainKey, processingKey: processingKey}
}

// Enqueue appends raw job bytes to the main list.
func (q *ReliableQueue) Enqueue(ctx context.Context, payload []byte) error {
	if err := q.client.RPush(ctx, q.mainKey, payload).Err(); err != nil {
		log.Printf("ReliableQueue.Enqueue: key=%s failed: %v", q.mainKey, err)
		return err
	}
	return nil
}

// Reserve blocks until a message is available on the main list, moving it
// onto the processing list in the same atomic step. The returned payload
// must eventually be resolved with Ack or Requeue.
func (q *ReliableQueue) Reserve(ctx context.Context, timeout time.Duration) ([]byte, error) {
	val, err := q.client.BRPopLPush(ctx, q.mainKey, q.processingKey, timeout).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		log.Printf("ReliableQueue.Reserve: key=%s failed: %v", q.mainKey, err)
		return nil, err
	}
	return []byte(val), nil
}

// Ack removes one copy of payload from the processing list, marking the
// job as durably handled.
func (q *ReliableQueue) Ack(ctx context.Context, payload []byte) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, payload).Err(); err != nil {
		log.Printf("ReliableQueue.Ack: key=%s failed: %v", q.processingKey, err)
		return err
	}
	return nil
}

// Requeue removes payload from the processing list and pushes a
// (possibly modified, e.g. attempt-number-incremented) replacement back
// onto the main list for another attempt.
func (q *ReliableQueue) Requeue(ctx context.Context, processingPayload, nextPayload []byte) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, processingPayload).Err(); err != nil {
		log.Printf("ReliableQueue.Requeue: LRem key=%s failed: %v", q.processingKey, err)
		return err
	}
	if err := q.client.LPush(ctx, q.mainKey, nextPayload).Err(); err != nil {
		log.Printf("ReliableQueue.Requeue: LPush key=%s failed: %v", q.mainKey, err)
		return err
	}
	return nil
}

// Depth reports the number of messages waiting on the main list, used by
// the metrics exporter's queue-depth gauges.
func (q *ReliableQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.mainKey).Result()
}

// ProcessingDepth reports the number of messages currently reserved but
// not yet acked or requeued.
func (q *ReliableQueue) ProcessingDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.processingKey).Result()
}
