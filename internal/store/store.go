package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Store wraps the pgx connection pool. All persistence goes through it.
type Store struct {
	pool *pgxpool.Pool
	dim  int // embedding dimension, fixed per deployment
}

// Options configures pool sizing and the deployment embedding dimension.
type Options struct {
	MaxConns int
	Dim      int
}

// New connects to Postgres and registers pgvector types on every connection.
func New(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	dim := opts.Dim
	if dim <= 0 {
		dim = 3072
	}
	return &Store{pool: pool, dim: dim}, nil
}

// Dim returns the deployment-fixed embedding dimension.
func (s *Store) Dim() int { return s.dim }

// Ping verifies database reachability; the health endpoint calls this.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
