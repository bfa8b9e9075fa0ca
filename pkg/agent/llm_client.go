// Package agent runs the conversational tool-use loop: a Session streams a
// user message to the completion oracle, executes the tool calls it asks
// for and feeds the results back until the oracle produces a final answer.
package agent

import (
	"context"
	"encoding/json"

	"github.com/codeready-toolchain/sherlog/pkg/tools"
)

// LLMClient is the completion oracle.
type LLMClient interface {
	// Generate sends a conversation to the LLM and returns a stream of chunks.
	// The returned channel is closed when the stream completes.
	// Errors are delivered as ErrorChunk values in the channel.
	Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error)

	// Close releases idle connections.
	Close() error
}

// GenerateInput is one oracle request.
type GenerateInput struct {
	System    string
	Messages  []Message
	Tools     []tools.Definition
	MaxTokens int

	// DisableTools keeps the catalog in the request (earlier turns reference
	// it) but forbids new tool calls.
	DisableTools bool
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies a content block inside a turn.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one element of a turn. Which fields are set depends on Type:
// text uses Text; tool_use uses ToolUseID, Name and Input; tool_result uses
// ToolUseID, Content and IsError.
type ContentBlock struct {
	Type      BlockType
	Text      string
	ToolUseID string
	Name      string
	Input     json.RawMessage
	Content   string
	IsError   bool
}

// Message is a conversation turn.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// TextMessage builds a single-block text turn.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// StopReason is why the oracle ended its turn.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Chunk is the interface for all streaming chunk types.
type Chunk interface {
	chunkType() ChunkType
}

// ChunkType identifies the kind of streaming chunk.
type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeStop     ChunkType = "stop"
	ChunkTypeError    ChunkType = "error"
)

// TextChunk is a fragment of the response text.
type TextChunk struct{ Content string }

// ToolCallChunk is a complete tool invocation request.
type ToolCallChunk struct {
	CallID string
	Name   string
	Input  json.RawMessage
}

// UsageChunk reports token consumption for this request.
type UsageChunk struct{ InputTokens, OutputTokens int }

// StopChunk carries the stop reason; it is the last chunk of a healthy stream.
type StopChunk struct{ Reason StopReason }

// ErrorChunk signals an error from the provider.
type ErrorChunk struct {
	Message   string
	Code      string
	Retryable bool
}

func (c *TextChunk) chunkType() ChunkType     { return ChunkTypeText }
func (c *ToolCallChunk) chunkType() ChunkType { return ChunkTypeToolCall }
func (c *UsageChunk) chunkType() ChunkType    { return ChunkTypeUsage }
func (c *StopChunk) chunkType() ChunkType     { return ChunkTypeStop }
func (c *ErrorChunk) chunkType() ChunkType    { return ChunkTypeError }
