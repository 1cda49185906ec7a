package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Pinger is a store that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler returns the storage health check endpoint. A nil pinger
// reports the in-memory store, which is always healthy.
func HealthHandler(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p == nil {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"status":  "healthy",
				"storage": "memory",
			})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := map[string]interface{}{"storage": "postgres"}
		var stats *PoolStats
		if pool, ok := p.(*pgxpool.Pool); ok {
			stats = GetPoolStats(pool)
			body["pool"] = stats
		}

		if err := p.Ping(ctx); err != nil {
			if stats != nil {
				stats.Healthy = false
			}
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}

		body["status"] = "healthy"
		return c.JSON(http.StatusOK, body)
	}
}
