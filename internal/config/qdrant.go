// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"context"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/northbound/chunkcore/internal/logger"
)

// NewQdrantConn dials the vector gateway's Qdrant gRPC endpoint.
// Reads QDRANT_URL (default: localhost:6334); QDRANT_API_KEY, if set, is
// attached to every call as api-key metadata.
func NewQdrantConn(ctx context.Context) (*grpc.ClientConn, error) {
	addr := os.Getenv("QDRANT_URL")
	if addr == "" {
		addr = "localhost:6334"
	}

	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(apiKey)))
	}

	logger.Printf("NewQdrantConn: dialing %s", addr)

	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		logger.Printf("NewQdrantConn: failed to dial %s: %v", addr, err)
		return nil, err
	}

	logger.Printf("NewQdrantConn: connected to %s", addr)
	return conn, nil
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
