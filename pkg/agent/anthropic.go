package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeready-toolchain/sherlog/pkg/config"
)

// Anthropic Messages API constants
const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com/"
	DefaultAnthropicKeyEnv  = "ANTHROPIC_API_KEY"

	// Connection failures, 408/409/429 and 5xx responses are retried by the
	// SDK with backoff before the stream opens.
	defaultAnthropicMaxRetries = 2
)

var _ LLMClient = (*AnthropicClient)(nil)

// AnthropicClient implements LLMClient against the Anthropic Messages API
// with SSE streaming.
type AnthropicClient struct {
	client  anthropic.Client
	model   string
	baseURL string
}

// AnthropicOption customizes the underlying SDK client.
type AnthropicOption = option.RequestOption

// WithHTTPClient replaces the default HTTP client. The client must not set a
// Timeout: request deadlines come from the context.
func WithHTTPClient(c *http.Client) AnthropicOption {
	return option.WithHTTPClient(c)
}

// WithMaxRetries overrides how often failed requests are retried.
func WithMaxRetries(n int) AnthropicOption {
	return option.WithMaxRetries(n)
}

// NewAnthropicClient resolves the API key from the provider's api_key_env
// (ANTHROPIC_API_KEY by default). base_url is the API root, without the
// /v1 path.
func NewAnthropicClient(cfg *config.LLMProviderConfig, opts ...AnthropicOption) (*AnthropicClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("LLM provider config is nil")
	}
	if cfg.Type != config.LLMProviderTypeAnthropic {
		return nil, fmt.Errorf("unsupported LLM provider type %q", cfg.Type)
	}
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultAnthropicKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", keyEnv)
	}
	baseURL := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	} else {
		baseURL += "/"
	}

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(defaultAnthropicMaxRetries),
	}, opts...)

	return &AnthropicClient{
		client:  anthropic.NewClient(reqOpts...),
		model:   cfg.Model,
		baseURL: baseURL,
	}, nil
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Close is a no-op: the SDK client holds no resources beyond its HTTP client.
func (c *AnthropicClient) Close() error {
	return nil
}

// toMessageParams converts the conversation into SDK request parameters.
func toMessageParams(model string, input *GenerateInput) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(input.MaxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(input.Messages)),
	}
	if input.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: input.System}}
	}

	for _, m := range input.Messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				if b.Text == "" {
					continue
				}
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case BlockToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUseID, nonEmptyInput(b.Input), b.Name))
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}

	for _, t := range input.Tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: toInputSchema(t.InputSchema),
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	if input.DisableTools && len(params.Tools) > 0 {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	}
	return params
}

// toInputSchema splits a JSON Schema object into the SDK's typed fields.
// The SDK always sends "type": "object".
func toInputSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	var out anthropic.ToolInputSchemaParam
	if props, ok := schema["properties"]; ok {
		out.Properties = props
	}
	switch req := schema["required"].(type) {
	case []string:
		out.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out
}

func nonEmptyInput(in json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(in)) == 0 {
		return json.RawMessage(`{}`)
	}
	return in
}

// Generate opens a streaming request. Every failure, including HTTP status
// errors, arrives as an ErrorChunk; the returned error is always nil.
func (c *AnthropicClient) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	stream := c.client.Messages.NewStreaming(ctx, toMessageParams(c.model, input))

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		send := func(c Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var message anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				send(&ErrorChunk{Message: fmt.Sprintf("malformed stream event: %v", err), Code: "bad_event"})
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !send(&TextChunk{Content: delta.Text}) {
						return
					}
				}
			case anthropic.ContentBlockStopEvent:
				if ev.Index < 0 || int(ev.Index) >= len(message.Content) {
					continue
				}
				block := message.Content[ev.Index]
				if block.Type != string(BlockToolUse) {
					continue
				}
				if !send(&ToolCallChunk{CallID: block.ID, Name: block.Name, Input: nonEmptyInput(block.Input)}) {
					return
				}
			case anthropic.MessageStopEvent:
				if !send(&UsageChunk{
					InputTokens:  int(message.Usage.InputTokens),
					OutputTokens: int(message.Usage.OutputTokens),
				}) {
					return
				}
				send(&StopChunk{Reason: StopReason(message.StopReason)})
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		if err := stream.Err(); err != nil {
			send(streamErrorChunk(err))
			return
		}
		send(&ErrorChunk{Message: "stream ended before message_stop", Code: "incomplete_stream", Retryable: true})
	}()
	return ch, nil
}

// streamErrorChunk classifies a failed request or an error event received
// mid-stream.
func streamErrorChunk(err error) *ErrorChunk {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := apiErrorType(apiErr.StatusCode)
		return &ErrorChunk{
			Message:   fmt.Sprintf("anthropic API error %d: %v", apiErr.StatusCode, err),
			Code:      code,
			Retryable: apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500,
		}
	}
	msg := err.Error()
	for _, code := range []string{"overloaded_error", "rate_limit_error", "api_error"} {
		if strings.Contains(msg, code) {
			return &ErrorChunk{Message: msg, Code: code, Retryable: true}
		}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ErrorChunk{Message: fmt.Sprintf("malformed stream event: %v", err), Code: "bad_event"}
	}
	return &ErrorChunk{Message: msg, Code: "stream_error", Retryable: true}
}

// apiErrorType maps an HTTP status to the API's error.type vocabulary.
func apiErrorType(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "invalid_request_error"
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusForbidden:
		return "permission_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status == 529:
		return "overloaded_error"
	case status >= 500:
		return "api_error"
	default:
		return "invalid_request_error"
	}
}
