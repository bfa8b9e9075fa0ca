package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/sherlog/pkg/metrics"
)

// QualifiedSeparator joins a server id and a tool name ("loki__query_range").
// Qualified names always route to the log-query collaborator.
const QualifiedSeparator = "__"

// Registry is the tool catalog and dispatcher. Memory tools are registered
// at construction; external tools are added by LoadExternal.
type Registry struct {
	mu       sync.RWMutex
	memory   map[string]Tool
	order    []string
	external []Definition
	known    map[string]bool
	logQuery LogQuery
}

// NewRegistry creates a registry over the given memory tools. logQuery may be
// nil when no log-query service is configured.
func NewRegistry(memory []Tool, logQuery LogQuery) *Registry {
	r := &Registry{
		memory:   make(map[string]Tool, len(memory)),
		known:    make(map[string]bool),
		logQuery: logQuery,
	}
	for _, t := range memory {
		if _, dup := r.memory[t.Name]; dup {
			slog.Warn("Duplicate memory tool, keeping the first", "tool", t.Name)
			continue
		}
		r.memory[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r
}

// LoadExternal discovers the log-query tools. A discovery failure is returned
// to the caller; name collisions with memory tools are skipped.
func (r *Registry) LoadExternal(ctx context.Context) error {
	if r.logQuery == nil {
		return nil
	}
	defs, err := r.logQuery.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover log-query tools: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.external = r.external[:0]
	r.known = make(map[string]bool, len(defs))
	for _, d := range defs {
		if _, clash := r.memory[d.Name]; clash {
			slog.Warn("External tool shadowed by memory tool, skipping", "tool", d.Name)
			continue
		}
		if r.known[d.Name] {
			continue
		}
		r.known[d.Name] = true
		r.external = append(r.external, d)
	}
	slog.Info("Tool catalog loaded", "memory_tools", len(r.order), "external_tools", len(r.external))
	return nil
}

// Definitions returns the catalog: memory tools first, then external tools,
// each in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order)+len(r.external))
	for _, name := range r.order {
		defs = append(defs, r.memory[name].Definition)
	}
	return append(defs, r.external...)
}

// Has reports whether name routes anywhere.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.memory[name]
	return ok || r.known[name]
}

// Dispatch routes a call: memory tools run locally, known external tools and
// qualified names go to the log-query collaborator, anything else fails with
// ErrUnknownTool.
func (r *Registry) Dispatch(ctx context.Context, name string, input json.RawMessage) (any, error) {
	r.mu.RLock()
	tool, isMemory := r.memory[name]
	isExternal := r.known[name]
	r.mu.RUnlock()

	if isMemory {
		out, err := tool.Execute(ctx, input)
		metrics.IncidentOperation(name, err)
		return out, err
	}
	if r.logQuery != nil && (isExternal || strings.Contains(name, QualifiedSeparator)) {
		out, err := r.logQuery.CallTool(ctx, name, input)
		if err != nil && !errors.Is(err, ErrUnknownTool) && !errors.Is(err, ErrToolExecution) {
			err = fmt.Errorf("%w: %s: %w", ErrToolExecution, name, err)
		}
		return out, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

// Execute dispatches call and converts the outcome into a ToolResult. Errors
// never escape: they become {"error": "..."} with IsError set.
func (r *Registry) Execute(ctx context.Context, call ToolCall) *ToolResult {
	start := time.Now()
	out, err := r.Dispatch(ctx, call.Name, call.Input)

	label := call.Name
	if errors.Is(err, ErrUnknownTool) {
		label = "unknown"
	}
	metrics.ObserveToolCall(label, time.Since(start), err != nil)

	if err != nil {
		slog.Warn("Tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
		return &ToolResult{CallID: call.ID, Name: call.Name, Content: errorPayload(err), IsError: true}
	}
	return &ToolResult{CallID: call.ID, Name: call.Name, Content: Stringify(out)}
}

// Stringify renders a tool result: strings verbatim, everything else as JSON.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func errorPayload(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
