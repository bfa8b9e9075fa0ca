package database

import (
	"context"
	"database/sql"
	"time"
)

// HealthStatus reports connectivity and pool statistics
type HealthStatus struct {
	Status          string `json:"status"`
	ResponseTime    int64  `json:"response_time_ms"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	Incidents       int64  `json:"incidents"`
}

// Health pings the database and counts stored incidents.
func Health(ctx context.Context, db *sql.DB) (*HealthStatus, error) {
	start := time.Now()

	if err := db.PingContext(ctx); err != nil {
		return &HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start).Milliseconds(),
		}, err
	}

	var count int64
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM incidents`).Scan(&count); err != nil {
		return &HealthStatus{
			Status:       "degraded",
			ResponseTime: time.Since(start).Milliseconds(),
		}, err
	}

	stats := db.Stats()
	return &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start).Milliseconds(),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		Incidents:       count,
	}, nil
}
