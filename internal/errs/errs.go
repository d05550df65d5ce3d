// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package errs defines the error taxonomy the ingestion core uses to
// decide whether a failed job should be retried, dropped silently, or
// surfaced to an operator. Every handler in internal/ingest,
// internal/groupupdate and internal/deletepipeline returns one of these
// so the worker loop is the single place that inspects errors and picks
// ack-vs-retry (see internal/retry).
package errs

import (
	"errors"
	"fmt"
)

// BadRequest signals an input-level problem that retrying will not fix.
type BadRequest struct{ Msg string }

func (e *BadRequest) Error() string { return e.Msg }

// DuplicateTrackingID signals an expected tracking-id conflict under a
// strict (non-upsert) insert. It is not an error condition the retry
// policy should act on: the job is silently acked and dropped.
type DuplicateTrackingID struct{ TrackingID string }

func (e *DuplicateTrackingID) Error() string {
	return fmt.Sprintf("duplicate tracking id: %s", e.TrackingID)
}

// NotFound signals a referenced entity (chunk, group, point) is absent.
type NotFound struct{ Msg string }

func (e *NotFound) Error() string { return e.Msg }

// InternalServerError wraps infrastructure failures (DB, queue, vector
// store, embedding service) that should be retried until the attempt cap.
type InternalServerError struct {
	Msg string
	Err error
}

func (e *InternalServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *InternalServerError) Unwrap() error { return e.Err }

// Wrap builds an InternalServerError around an existing error.
func Wrap(msg string, err error) *InternalServerError {
	return &InternalServerError{Msg: msg, Err: err}
}

// Retryable reports whether the worker's retry policy should re-enqueue
// the job (true) or ack-and-drop it (false, terminal for this attempt).
func Retryable(err error) bool {
	var dup *DuplicateTrackingID
	if errors.As(err, &dup) {
		return false
	}
	var bad *BadRequest
	if errors.As(err, &bad) {
		return false
	}
	return true
}
