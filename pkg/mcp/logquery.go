package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/sherlog/pkg/masking"
	"github.com/codeready-toolchain/sherlog/pkg/tools"
)

var _ tools.LogQuery = (*LogQuery)(nil)

// LogQuery adapts connected MCP servers to tools.LogQuery. Results are
// masked per server, truncated, then decoded when they look like JSON.
type LogQuery struct {
	client          *Client
	serverIDs       []string
	masking         *masking.Service
	maxResultTokens int

	mu     sync.RWMutex
	routes map[string]route
}

// NewLogQuery serves the tools of serverIDs, which must be sorted: on a name
// clash the first server keeps the bare name. maskingSvc may be nil.
func NewLogQuery(client *Client, serverIDs []string, maskingSvc *masking.Service, maxResultTokens int) *LogQuery {
	return &LogQuery{
		client:          client,
		serverIDs:       serverIDs,
		masking:         maskingSvc,
		maxResultTokens: maxResultTokens,
		routes:          make(map[string]route),
	}
}

// ListTools returns every tool under its bare name, or under server__tool
// when an earlier server already uses the bare name. Servers that fail to
// list are skipped; an error is returned only when all of them fail.
func (q *LogQuery) ListTools(ctx context.Context) ([]tools.Definition, error) {
	routes := make(map[string]route)
	var defs []tools.Definition
	var lastErr error
	listed := 0

	for _, serverID := range q.serverIDs {
		serverTools, err := q.client.ListTools(ctx, serverID)
		if err != nil {
			slog.Warn("Failed to list tools from MCP server", "server", serverID, "error", err)
			lastErr = err
			continue
		}
		listed++
		for _, t := range serverTools {
			r := route{server: serverID, tool: t.Name}
			qualified := QualifiedName(serverID, t.Name)
			routes[qualified] = r

			name := t.Name
			if _, taken := routes[name]; taken {
				slog.Warn("MCP tool name served by several servers, exposing qualified name",
					"tool", t.Name, "server", serverID, "name", qualified)
				name = qualified
			} else {
				routes[name] = r
			}
			defs = append(defs, tools.Definition{
				Name:        name,
				Description: t.Description,
				InputSchema: inputSchema(t),
			})
		}
	}

	if listed == 0 && lastErr != nil {
		return nil, fmt.Errorf("all MCP servers failed to list tools: %w", lastErr)
	}

	q.mu.Lock()
	q.routes = routes
	q.mu.Unlock()
	return defs, nil
}

// CallTool forwards input to the routed server.
func (q *LogQuery) CallTool(ctx context.Context, name string, input json.RawMessage) (any, error) {
	r, err := q.resolve(name)
	if err != nil {
		return nil, err
	}

	args := map[string]any{}
	if len(bytes.TrimSpace(input)) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", tools.ErrInvalidToolInput, err)
		}
	}

	result, err := q.client.CallTool(ctx, r.server, r.tool, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", tools.ErrToolExecution, r.server, r.tool, err)
	}

	content := textContent(result)
	if q.masking != nil {
		content = q.masking.MaskToolResult(content, r.server)
	}
	if result.IsError {
		return nil, fmt.Errorf("%w: %s", tools.ErrToolExecution, content)
	}
	return decodeResult(TruncateToTokens(content, q.maxResultTokens)), nil
}

// Close closes the underlying client.
func (q *LogQuery) Close() error {
	return q.client.Close()
}

func (q *LogQuery) resolve(name string) (route, error) {
	q.mu.RLock()
	r, ok := q.routes[name]
	q.mu.RUnlock()
	if ok {
		return r, nil
	}

	serverID, toolName, err := SplitQualifiedName(name)
	if err != nil || !q.client.HasSession(serverID) {
		return route{}, fmt.Errorf("%w: %s", tools.ErrUnknownTool, name)
	}
	return route{server: serverID, tool: toolName}, nil
}

// decodeResult returns the parsed value for JSON objects and arrays, and the
// text itself otherwise.
func decodeResult(content string) any {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return content
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return content
	}
	return v
}

// textContent joins the text parts of a result. Images and embedded
// resources are dropped.
func textContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		slog.Debug("Skipping non-text MCP content", "content_type", fmt.Sprintf("%T", c))
	}
	return strings.Join(parts, "\n")
}

func inputSchema(t *mcpsdk.Tool) tools.Schema {
	schema := tools.Schema{}
	if t.InputSchema != nil {
		if data, err := json.Marshal(t.InputSchema); err == nil {
			_ = json.Unmarshal(data, &schema)
		}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}
