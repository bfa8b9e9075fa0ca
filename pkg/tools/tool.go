// Package tools holds the uniform tool catalog the agent loop talks to:
// incident-memory tools backed by incident.Service and external log-query
// tools discovered at startup.
package tools

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrUnknownTool is returned when a call names no registered tool.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidToolInput is returned when the input bag does not decode into
	// the tool's input type.
	ErrInvalidToolInput = errors.New("invalid tool input")

	// ErrToolExecution wraps failures reported by an external tool.
	ErrToolExecution = errors.New("tool execution failed")
)

// Schema is a JSON Schema object as sent to the model.
type Schema = map[string]any

// Definition describes a tool to the model.
type Definition struct {
	Name        string
	Description string
	InputSchema Schema
}

// ExecuteFunc runs a tool against its raw JSON input. The returned value is
// stringified by the registry: strings verbatim, anything else as JSON.
type ExecuteFunc func(ctx context.Context, input json.RawMessage) (any, error)

// Tool is a catalog entry.
type Tool struct {
	Definition
	Execute ExecuteFunc
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the stringified outcome of a ToolCall.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// LogQuery is the external log-observability collaborator.
type LogQuery interface {
	// ListTools returns the tools the collaborator serves.
	ListTools(ctx context.Context) ([]Definition, error)
	// CallTool forwards input verbatim and returns the decoded result.
	CallTool(ctx context.Context, name string, input json.RawMessage) (any, error)
}
