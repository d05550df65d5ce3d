// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/northbound/chunkcore/internal/logger"
)

// NewPostgresDB opens the relational gateway's database connection from
// DATABASE_URL via the pgx stdlib driver and verifies connectivity.
func NewPostgresDB(ctx context.Context) (*sql.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("NewPostgresDB: DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Printf("NewPostgresDB: failed to open: %v", err)
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		logger.Printf("NewPostgresDB: failed to ping: %v", err)
		_ = db.Close()
		return nil, err
	}

	logger.Printf("NewPostgresDB: successfully connected to Postgres")
	return db, nil
}
