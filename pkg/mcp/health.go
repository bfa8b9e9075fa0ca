package mcp

import (
	"context"
	"time"
)

// HealthStatus is the result of probing one server.
type HealthStatus struct {
	ServerID  string        `json:"server_id"`
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	ToolCount int           `json:"tool_count"`
	Error     string        `json:"error,omitempty"`
}

// Check exercises every configured server with a fresh tool listing, reconnecting
// once when the listing fails. Servers that never connected are reported with
// their connection error.
func (c *Client) Check(ctx context.Context) []HealthStatus {
	failed := c.FailedServers()
	statuses := make([]HealthStatus, 0, c.registry.Len())

	for _, serverID := range c.registry.ServerIDs() {
		if msg, ok := failed[serverID]; ok {
			statuses = append(statuses, HealthStatus{ServerID: serverID, Error: msg})
			continue
		}
		statuses = append(statuses, c.checkServer(ctx, serverID))
	}
	return statuses
}

func (c *Client) checkServer(ctx context.Context, serverID string) HealthStatus {
	start := time.Now()
	c.InvalidateToolCache(serverID)

	listTools := func() (int, error) {
		checkCtx, cancel := context.WithTimeout(ctx, HealthTimeout)
		defer cancel()
		tools, err := c.ListTools(checkCtx, serverID)
		return len(tools), err
	}

	n, err := listTools()
	if err != nil {
		c.logger.Debug("Health check failed, reconnecting", "server", serverID, "error", err)
		if reErr := c.recreateSession(ctx, serverID); reErr != nil {
			return HealthStatus{ServerID: serverID, Latency: time.Since(start), Error: err.Error()}
		}
		if n, err = listTools(); err != nil {
			return HealthStatus{ServerID: serverID, Latency: time.Since(start), Error: err.Error()}
		}
	}
	return HealthStatus{ServerID: serverID, Healthy: true, Latency: time.Since(start), ToolCount: n}
}
