// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package workerloop is the shared reserve/dispatch/ack loop every
// queue-backed worker (ingestion, group update, delete) runs over the
// reliable Redis list queue's reserve-and-ack protocol.
package workerloop

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/northbound/chunkcore/internal/queue"
	"github.com/northbound/chunkcore/internal/retry"
)

// Handler processes one reserved job payload.
type Handler func(ctx context.Context, payload []byte) error

// Bump reserializes a job envelope with its attempt number incremented.
type Bump func(payload []byte, nextAttempt int) (json.RawMessage, error)

// CurrentAttempt extracts a job envelope's attempt_number field.
type CurrentAttempt func(payload []byte) int

// OnTerminal is invoked once a job's attempt cap is reached and it will
// not be requeued, so the caller can record the job-specific terminal
// failure event (e.g. BulkChunkUploadFailed, GroupChunksActionFailed).
type OnTerminal func(ctx context.Context, payload []byte, handlerErr error)

// Config controls one queue's worker pool.
type Config struct {
	Queue          *queue.ReliableQueue
	Handler        Handler
	Policy         retry.Policy
	CurrentAttempt CurrentAttempt
	Bump           Bump
	OnTerminal     OnTerminal
	WorkerCount    int
	ReserveTimeout time.Duration
}

// Run starts cfg.WorkerCount goroutines pulling from the reliable queue
// until ctx is cancelled, and blocks until every worker has stopped.
func Run(ctx context.Context, cfg Config) {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.ReserveTimeout <= 0 {
		cfg.ReserveTimeout = time.Second
	}

	var wg sync.WaitGroup
	wg.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		workerID := i + 1
		go func() {
			defer wg.Done()
			loop(ctx, cfg, workerID)
		}()
	}
	wg.Wait()
	log.Printf("workerloop: all %d workers stopped", cfg.WorkerCount)
}

func loop(ctx context.Context, cfg Config, workerID int) {
	log.Printf("workerloop: worker %d started", workerID)
	brokenPipeSleep := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Printf("workerloop: worker %d stopping", workerID)
			return
		default:
		}

		payload, err := cfg.Queue.Reserve(ctx, cfg.ReserveTimeout)
		if err != nil {
			log.Printf("workerloop: worker %d reserve error: %v", workerID, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(brokenPipeSleep):
			}
			brokenPipeSleep = minDuration(brokenPipeSleep*2, 300*time.Second)
			continue
		}
		brokenPipeSleep = 10 * time.Second
		if payload == nil {
			continue
		}

		handlerErr := cfg.Handler(ctx, payload)
		if handlerErr == nil {
			if err := cfg.Queue.Ack(ctx, payload); err != nil {
				log.Printf("workerloop: worker %d ack failed: %v", workerID, err)
			}
			continue
		}

		attempt := 0
		if cfg.CurrentAttempt != nil {
			attempt = cfg.CurrentAttempt(payload)
		}
		outcome, err := retry.Resolve(ctx, cfg.Queue, payload, handlerErr, cfg.Policy, attempt, func(next int) (json.RawMessage, error) {
			return cfg.Bump(payload, next)
		})
		if err != nil {
			log.Printf("workerloop: worker %d retry resolution failed: %v", workerID, err)
		}
		switch outcome {
		case retry.OutcomeTerminal:
			log.Printf("workerloop: worker %d job failed terminally after %d attempts: %v", workerID, attempt+1, handlerErr)
			if cfg.OnTerminal != nil {
				cfg.OnTerminal(ctx, payload, handlerErr)
			}
		case retry.OutcomeRequeued:
			log.Printf("workerloop: worker %d requeued job for attempt %d: %v", workerID, attempt+1, handlerErr)
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
