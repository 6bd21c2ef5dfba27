package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Health describes the outcome of a database health probe.
type Health struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
	TotalConn int32         `json:"total_conns"`
	IdleConn  int32         `json:"idle_conns"`
}

// Check pings the database with a short deadline and reports pool statistics.
func Check(ctx context.Context, pool *pgxpool.Pool) Health {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := pool.Ping(ctx)
	h := Health{
		Healthy: err == nil,
		Latency: time.Since(start),
	}
	if err != nil {
		h.Error = err.Error()
	}
	stats := pool.Stat()
	h.TotalConn = stats.TotalConns()
	h.IdleConn = stats.IdleConns()
	return h
}
