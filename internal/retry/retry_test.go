// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/northbound/chunkcore/internal/errs"
)

// fakeQueue is an in-memory stand-in for *queue.ReliableQueue, just the
// Ack/Requeue surface retry.Resolve needs.
type fakeQueue struct {
	acked    [][]byte
	requeued [][]byte
	ackErr   error
	reqErr   error
}

func (f *fakeQueue) Ack(ctx context.Context, payload []byte) error {
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, payload)
	return nil
}

func (f *fakeQueue) Requeue(ctx context.Context, processingPayload, nextPayload []byte) error {
	if f.reqErr != nil {
		return f.reqErr
	}
	f.requeued = append(f.requeued, nextPayload)
	return nil
}

func noopBump(next int) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`{"attempt_number":%d}`, next)), nil
}

// A non-retryable handler error (bad request, duplicate tracking id) is
// acked and dropped without ever being requeued.
func TestResolve_NonRetryableIsAcked(t *testing.T) {
	q := &fakeQueue{}
	outcome, err := Resolve(context.Background(), q, []byte("job"), &errs.BadRequest{Msg: "bad"}, BulkUploadPolicy, 0, noopBump)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeAcked {
		t.Fatalf("expected OutcomeAcked, got %v", outcome)
	}
	if len(q.acked) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(q.acked))
	}
	if len(q.requeued) != 0 {
		t.Fatalf("expected no requeue, got %d", len(q.requeued))
	}
}

// A retryable error under the attempt cap is requeued with a bumped
// attempt number instead of acked.
func TestResolve_RetryableBelowCapIsRequeued(t *testing.T) {
	q := &fakeQueue{}
	outcome, err := Resolve(context.Background(), q, []byte("job"), errBoom, BulkUploadPolicy, 0, noopBump)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeRequeued {
		t.Fatalf("expected OutcomeRequeued, got %v", outcome)
	}
	if len(q.requeued) != 1 {
		t.Fatalf("expected 1 requeue, got %d", len(q.requeued))
	}
	if len(q.acked) != 0 {
		t.Fatalf("expected no ack, got %d", len(q.acked))
	}
}

// S6: a job that has already failed up to the policy's attempt cap is
// acked (not requeued again) and the caller is told the job is
// terminally failed, so it can record a BulkChunkUploadFailed-style
// event exactly once instead of on every retry.
func TestResolve_AttemptCapReachedIsTerminal(t *testing.T) {
	q := &fakeQueue{}
	outcome, err := Resolve(context.Background(), q, []byte("job"), errBoom, BulkUploadPolicy, BulkUploadPolicy.MaxAttempts-1, noopBump)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeTerminal {
		t.Fatalf("expected OutcomeTerminal, got %v", outcome)
	}
	if len(q.acked) != 1 {
		t.Fatalf("expected terminal failure to ack (not requeue), got %d acks", len(q.acked))
	}
	if len(q.requeued) != 0 {
		t.Fatalf("expected no requeue once the attempt cap is reached, got %d", len(q.requeued))
	}
}

// The group-update policy caps at 3 attempts rather than bulk upload's
// 10; Resolve must honor whichever policy the caller passes, not a
// hardcoded constant.
func TestResolve_DifferentPoliciesHaveIndependentCaps(t *testing.T) {
	q := &fakeQueue{}
	outcome, err := Resolve(context.Background(), q, []byte("job"), errBoom, GroupUpdatePolicy, GroupUpdatePolicy.MaxAttempts-1, noopBump)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if outcome != OutcomeTerminal {
		t.Fatalf("expected OutcomeTerminal at group-update's lower cap, got %v", outcome)
	}
}

var errBoom = fmt.Errorf("boom")
