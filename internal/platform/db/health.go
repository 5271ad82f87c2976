package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the JSON view of pgxpool statistics on /health/db.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// HealthChecker is satisfied by *pgxpool.Pool through PoolChecker.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

// PoolChecker adapts a pgx pool to HealthChecker.
type PoolChecker struct{ Pool *pgxpool.Pool }

func (p PoolChecker) Ping(ctx context.Context) error { return p.Pool.Ping(ctx) }
func (p PoolChecker) Stats() *PoolStats              { return GetPoolStats(p.Pool) }

// HealthHandler pings the database with a short timeout and reports pool
// statistics. An unreachable database yields 503.
func HealthHandler(hc HealthChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		err := hc.Ping(ctx)
		stats := hc.Stats()
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
