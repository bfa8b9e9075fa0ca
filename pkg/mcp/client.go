// Package mcp connects to the configured log-query MCP servers and exposes
// their tools to the dispatcher.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/sherlog/pkg/config"
	"github.com/codeready-toolchain/sherlog/pkg/version"
)

// Client holds one SDK session per MCP server. Safe for concurrent use.
type Client struct {
	registry *config.MCPServerRegistry

	mu            sync.RWMutex
	sessions      map[string]*mcpsdk.ClientSession
	clients       map[string]*mcpsdk.Client
	failedServers map[string]string

	// Filled on first ListTools per server; cleared when a session is recreated.
	toolCache   map[string][]*mcpsdk.Tool
	toolCacheMu sync.RWMutex

	// serverID → *sync.Mutex, serializes (re)connects per server.
	reinitMu sync.Map

	logger *slog.Logger
}

// NewClient creates an unconnected client.
func NewClient(registry *config.MCPServerRegistry) *Client {
	return &Client{
		registry:      registry,
		sessions:      make(map[string]*mcpsdk.ClientSession),
		clients:       make(map[string]*mcpsdk.Client),
		failedServers: make(map[string]string),
		toolCache:     make(map[string][]*mcpsdk.Tool),
		logger:        slog.Default().With("component", "mcp"),
	}
}

// Connect creates a client and connects every server in the registry. Any
// server that fails to connect makes Connect fail; sessions that did connect
// are closed.
func Connect(ctx context.Context, registry *config.MCPServerRegistry) (*Client, error) {
	c := NewClient(registry)
	if err := c.Initialize(ctx, registry.ServerIDs()); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Initialize connects the given servers. Failures are recorded in
// FailedServers and joined into the returned error.
func (c *Client) Initialize(ctx context.Context, serverIDs []string) error {
	var errs []error
	for _, serverID := range serverIDs {
		if err := c.InitializeServer(ctx, serverID); err != nil {
			c.mu.Lock()
			c.failedServers[serverID] = err.Error()
			c.mu.Unlock()
			c.logger.Warn("MCP server failed to initialize", "server", serverID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InitializeServer connects one server; a no-op when already connected.
func (c *Client) InitializeServer(ctx context.Context, serverID string) error {
	mu := c.serverLock(serverID)
	mu.Lock()
	defer mu.Unlock()
	return c.initializeServerLocked(ctx, serverID)
}

func (c *Client) serverLock(serverID string) *sync.Mutex {
	muI, _ := c.reinitMu.LoadOrStore(serverID, &sync.Mutex{})
	return muI.(*sync.Mutex)
}

// initializeServerLocked requires the server's reinit lock.
func (c *Client) initializeServerLocked(ctx context.Context, serverID string) error {
	if c.HasSession(serverID) {
		return nil
	}

	serverCfg, err := c.registry.Get(serverID)
	if err != nil {
		return fmt.Errorf("server %q not found in registry: %w", serverID, err)
	}

	transport, err := createTransport(serverCfg.Transport)
	if err != nil {
		return fmt.Errorf("failed to create transport for %q: %w", serverID, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		// stdio transports own a child process
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return fmt.Errorf("failed to connect to %q: %w", serverID, err)
	}

	c.injectSession(serverID, client, session)
	c.logger.Info("MCP server connected", "server", serverID)
	return nil
}

func (c *Client) injectSession(serverID string, client *mcpsdk.Client, session *mcpsdk.ClientSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[serverID] = session
	c.clients[serverID] = client
	delete(c.failedServers, serverID)
}

func (c *Client) session(serverID string) (*mcpsdk.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	session, ok := c.sessions[serverID]
	if !ok {
		return nil, fmt.Errorf("no session for server %q", serverID)
	}
	return session, nil
}

// ListTools returns the tools served by serverID, cached after the first call.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]*mcpsdk.Tool, error) {
	// Lock ordering: never acquire c.mu while holding toolCacheMu.
	c.toolCacheMu.RLock()
	cached, ok := c.toolCache[serverID]
	c.toolCacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	session, err := c.session(serverID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", serverID, err)
	}

	tools := result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}
	c.toolCacheMu.Lock()
	c.toolCache[serverID] = tools
	c.toolCacheMu.Unlock()
	return tools, nil
}

// CallTool runs a tool on serverID. A connection failure is retried once
// after a jittered backoff on a fresh session.
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	params := &mcpsdk.CallToolParams{Name: toolName, Arguments: args}

	result, err := c.callToolOnce(ctx, serverID, params)
	if err == nil {
		return result, nil
	}

	action := ClassifyError(err)
	if action == NoRetry {
		return nil, err
	}
	c.logger.Info("MCP call failed, retrying", "server", serverID, "tool", toolName, "action", action, "error", err)

	backoff := RetryBackoffMin + time.Duration(rand.Int64N(int64(RetryBackoffMax-RetryBackoffMin)))
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if action == RetryNewSession {
		if err := c.recreateSession(ctx, serverID); err != nil {
			return nil, fmt.Errorf("session recreation failed for %q: %w", serverID, err)
		}
	}

	result, err = c.callToolOnce(ctx, serverID, params)
	if err != nil {
		return nil, fmt.Errorf("retry failed for %s/%s: %w", serverID, toolName, err)
	}
	return result, nil
}

func (c *Client) callToolOnce(ctx context.Context, serverID string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	session, err := c.session(serverID)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()
	return session.CallTool(opCtx, params)
}

// recreateSession closes and reconnects serverID. Two callers racing here
// reconnect twice.
func (c *Client) recreateSession(ctx context.Context, serverID string) error {
	mu := c.serverLock(serverID)
	mu.Lock()
	defer mu.Unlock()

	c.mu.Lock()
	if session, ok := c.sessions[serverID]; ok {
		_ = session.Close()
		delete(c.sessions, serverID)
		delete(c.clients, serverID)
	}
	c.mu.Unlock()

	c.InvalidateToolCache(serverID)

	reinitCtx, cancel := context.WithTimeout(ctx, ReinitTimeout)
	defer cancel()
	return c.initializeServerLocked(reinitCtx, serverID)
}

// InvalidateToolCache drops the cached tool list for serverID.
func (c *Client) InvalidateToolCache(serverID string) {
	c.toolCacheMu.Lock()
	delete(c.toolCache, serverID)
	c.toolCacheMu.Unlock()
}

// HasSession reports whether serverID is connected.
func (c *Client) HasSession(serverID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessions[serverID]
	return ok
}

// FailedServers returns serverID → error for servers that failed to connect.
func (c *Client) FailedServers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.failedServers)
}

// Close shuts every session down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for id, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", id, err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
	c.clients = make(map[string]*mcpsdk.Client)
	c.failedServers = make(map[string]string)

	// mu → toolCacheMu is the only permitted order.
	c.toolCacheMu.Lock()
	c.toolCache = make(map[string][]*mcpsdk.Tool)
	c.toolCacheMu.Unlock()
	return firstErr
}
