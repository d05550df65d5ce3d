// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package retry implements the shared attempt-cap policy every worker
// uses when a handler fails: re-enqueue the job with its attempt counter
// incremented, up to a policy-specific cap, after which the job is
// considered terminally failed and an event is recorded instead.
package retry

import (
	"context"
	"encoding/json"
	"log"

	"github.com/northbound/chunkcore/internal/errs"
)

// AckRequeuer is the subset of *queue.ReliableQueue Resolve needs,
// narrowed (as internal/collide.Searcher already models its own
// dependency) so tests can supply an in-memory fake instead of
// standing up Redis.
type AckRequeuer interface {
	Ack(ctx context.Context, payload []byte) error
	Requeue(ctx context.Context, processingPayload, nextPayload []byte) error
}

// Policy names an attempt cap for one job class. Bulk ingestion allows
// 10 attempts, group updates 3, and delete jobs 3 (DeletePolicy).
type Policy struct {
	MaxAttempts int
}

var (
	BulkUploadPolicy  = Policy{MaxAttempts: 10}
	UpdatePolicy      = Policy{MaxAttempts: 10}
	GroupUpdatePolicy = Policy{MaxAttempts: 3}
	DeletePolicy      = Policy{MaxAttempts: 3}
	PGInsertPolicy    = Policy{MaxAttempts: 10}
)

// Outcome is what the worker loop should do with the reserved message
// after a handler failure.
type Outcome int

const (
	// OutcomeAcked means the error was non-retryable (or a benign
	// duplicate) and the message should simply be acked and dropped.
	OutcomeAcked Outcome = iota
	// OutcomeRequeued means the message was requeued with a bumped
	// attempt number for another try.
	OutcomeRequeued
	// OutcomeTerminal means the attempt cap was reached; the caller
	// should record a terminal failure event.
	OutcomeTerminal
)

// Resolve decides what to do with a failed job and, for the requeue
// case, performs the Ack+Requeue against q. attemptNumber/bump lets
// each job envelope type (which differ in shape) supply its own
// "increment attempt_number and re-marshal" step.
func Resolve(
	ctx context.Context,
	q AckRequeuer,
	reserved []byte,
	handlerErr error,
	policy Policy,
	currentAttempt int,
	bump func(nextAttempt int) (json.RawMessage, error),
) (Outcome, error) {
	if !errs.Retryable(handlerErr) {
		if err := q.Ack(ctx, reserved); err != nil {
			return OutcomeAcked, err
		}
		return OutcomeAcked, nil
	}

	nextAttempt := currentAttempt + 1
	if nextAttempt >= policy.MaxAttempts {
		log.Printf("retry.Resolve: attempt cap %d reached: %v", policy.MaxAttempts, handlerErr)
		if err := q.Ack(ctx, reserved); err != nil {
			return OutcomeTerminal, err
		}
		return OutcomeTerminal, nil
	}

	nextPayload, err := bump(nextAttempt)
	if err != nil {
		return OutcomeTerminal, errs.Wrap("failed to reserialize job for retry", err)
	}

	log.Printf("retry.Resolve: requeueing after error, attempt=%d: %v", nextAttempt, handlerErr)
	if err := q.Requeue(ctx, reserved, nextPayload); err != nil {
		return OutcomeRequeued, err
	}
	return OutcomeRequeued, nil
}
