package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/sherlog/pkg/metrics"
	"github.com/codeready-toolchain/sherlog/pkg/tools"
)

// TruncationMarker is appended to replies cut off by the output token limit.
const TruncationMarker = "\n\n[Response truncated: maximum output length reached]"

// EmptyReplyText stands in the history for an oracle turn that produced
// neither text nor tool calls.
const EmptyReplyText = "(no response)"

// Session defaults
const (
	DefaultMaxIterations = 25
	DefaultMaxTokens     = 8192
	DefaultLLMTimeout    = 5 * time.Minute
	DefaultToolTimeout   = 2 * time.Minute

	defaultForcedConclusion = "You have reached the tool-call limit for this message. Stop calling tools and answer with what you have gathered so far."
)

// ToolExecutor is the tool catalog and dispatcher. *tools.Registry
// implements it. Execute must not fail: errors are reported in-band.
type ToolExecutor interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, call tools.ToolCall) *tools.ToolResult
}

// SessionConfig wires a Session. LLM and Tools are required; zero values
// elsewhere fall back to the defaults above.
type SessionConfig struct {
	LLM          LLMClient
	Tools        ToolExecutor
	SystemPrompt string

	// Model labels metrics only; the client decides what it calls.
	Model string

	MaxTokens     int
	MaxIterations int
	LLMTimeout    time.Duration
	ToolTimeout   time.Duration

	// ForcedConclusionPrompt is added to the conversation when MaxIterations
	// is exhausted.
	ForcedConclusionPrompt string
}

// Session is one conversation with the oracle. Sessions are independent of
// each other; a single session processes one message at a time.
type Session struct {
	id     string
	cfg    SessionConfig
	logger *slog.Logger

	// held for the whole exchange
	busy sync.Mutex

	mu      sync.RWMutex
	history []Message
}

// NewSession validates cfg and applies defaults.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("session requires an LLM client")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("session requires a tool executor")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.ForcedConclusionPrompt == "" {
		cfg.ForcedConclusionPrompt = defaultForcedConclusion
	}

	id := uuid.NewString()
	return &Session{
		id:     id,
		cfg:    cfg,
		logger: slog.Default().With("session_id", id),
	}, nil
}

// ID returns the session's random identifier.
func (s *Session) ID() string {
	return s.id
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history)
}

// Send processes message in the background and streams its events. The
// channel is closed after the terminal EventDone or EventError. The caller
// must drain it or cancel ctx.
func (s *Session) Send(ctx context.Context, message string) <-chan Event {
	ch := make(chan Event, 16)

	if !s.busy.TryLock() {
		ch <- EventError{Err: ErrSessionBusy}
		close(ch)
		return ch
	}

	go func() {
		// unlock before close: a drained channel means the session is free
		defer close(ch)
		defer s.busy.Unlock()

		emit := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reply, err := s.exchange(ctx, message, emit)
		if err != nil {
			emit(EventError{Err: err})
			return
		}
		emit(EventDone{Reply: reply})
	}()
	return ch
}

// SendMessage is the blocking form of Send. obs may be nil.
func (s *Session) SendMessage(ctx context.Context, message string, obs Observer) (string, error) {
	for ev := range s.Send(ctx, message) {
		switch e := ev.(type) {
		case EventDone:
			return e.Reply, nil
		case EventError:
			return "", e.Err
		default:
			if obs != nil {
				obs(ev)
			}
		}
	}
	// closed without a terminal event: ctx was cancelled
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", errors.New("event stream closed without a result")
}

// exchange runs one user message to completion. On error the conversation is
// restored to its state before the message.
func (s *Session) exchange(ctx context.Context, message string, emit func(Event) bool) (string, error) {
	mark := s.historyLen()
	s.appendTurn(TextMessage(RoleUser, message))

	reply, err := s.loop(ctx, emit)
	if err != nil {
		s.truncateHistory(mark)
		s.logger.Warn("Message exchange failed, conversation rolled back", "error", err)
		return "", err
	}
	return reply, nil
}

func (s *Session) loop(ctx context.Context, emit func(Event) bool) (string, error) {
	catalog := s.cfg.Tools.Definitions()

	for iteration := 1; ; iteration++ {
		forced := iteration > s.cfg.MaxIterations
		if forced {
			s.logger.Info("Iteration limit reached, forcing a conclusion", "max_iterations", s.cfg.MaxIterations)
			s.appendToLastUserTurn(s.cfg.ForcedConclusionPrompt)
		}

		resp, err := s.generate(ctx, &GenerateInput{
			System:       s.cfg.SystemPrompt,
			Messages:     s.History(),
			Tools:        catalog,
			MaxTokens:    s.cfg.MaxTokens,
			DisableTools: forced,
		}, emit)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrOracle, err)
		}

		s.logger.Debug("Oracle turn complete",
			"iteration", iteration, "stop_reason", resp.StopReason, "tool_calls", len(resp.ToolCalls))

		if resp.StopReason != StopToolUse {
			// tool_use blocks without a following tool_result would poison
			// every later request
			resp.ToolCalls = nil
		}
		s.appendTurn(resp.assistantTurn())

		switch resp.StopReason {
		case StopEndTurn:
			return resp.Text, nil
		case StopMaxTokens:
			return resp.Text + TruncationMarker, nil
		case StopToolUse:
			if len(resp.ToolCalls) == 0 {
				return resp.Text, nil
			}
			if forced {
				return "", ErrMaxIterations
			}
			s.appendTurn(Message{Role: RoleUser, Content: s.runTools(ctx, resp.ToolCalls, emit)})
		default:
			s.logger.Warn("Unexpected stop reason", "stop_reason", resp.StopReason)
			return resp.Text, nil
		}
	}
}

// llmResponse is a fully collected oracle stream.
type llmResponse struct {
	Text       string
	ToolCalls  []tools.ToolCall
	StopReason StopReason
}

func (r *llmResponse) assistantTurn() Message {
	var blocks []ContentBlock
	if r.Text != "" {
		blocks = append(blocks, ContentBlock{Type: BlockText, Text: r.Text})
	}
	for _, call := range r.ToolCalls {
		blocks = append(blocks, ContentBlock{
			Type:      BlockToolUse,
			ToolUseID: call.ID,
			Name:      call.Name,
			Input:     call.Input,
		})
	}
	if len(blocks) == 0 {
		// roles must alternate and the API rejects empty text blocks
		blocks = append(blocks, ContentBlock{Type: BlockText, Text: EmptyReplyText})
	}
	return Message{Role: RoleAssistant, Content: blocks}
}

// generate performs one oracle request under LLMTimeout, forwarding text
// deltas as they arrive.
func (s *Session) generate(ctx context.Context, input *GenerateInput, emit func(Event) bool) (resp *llmResponse, err error) {
	llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		stop := ""
		if resp != nil {
			stop = string(resp.StopReason)
		}
		metrics.ObserveLLMRequest(s.cfg.Model, stop, time.Since(start), err)
	}()

	stream, err := s.cfg.LLM.Generate(llmCtx, input)
	if err != nil {
		return nil, err
	}

	out := &llmResponse{}
	var text strings.Builder
	stopped := false

	for chunk := range stream {
		switch c := chunk.(type) {
		case *TextChunk:
			text.WriteString(c.Content)
			emit(EventText{Delta: c.Content})
		case *ToolCallChunk:
			out.ToolCalls = append(out.ToolCalls, tools.ToolCall{ID: c.CallID, Name: c.Name, Input: c.Input})
		case *UsageChunk:
			metrics.AddTokens(s.cfg.Model, c.InputTokens, c.OutputTokens)
		case *StopChunk:
			out.StopReason = c.Reason
			stopped = true
		case *ErrorChunk:
			// let the producer see cancellation before we stop reading
			cancel()
			for range stream {
			}
			return nil, fmt.Errorf("LLM error: %s (code: %s, retryable: %v)", c.Message, c.Code, c.Retryable)
		}
	}

	if !stopped {
		if err := llmCtx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("stream closed without a stop reason")
	}
	out.Text = text.String()
	return out, nil
}

// runTools executes calls sequentially in the order the oracle gave them and
// returns one tool_result block per call.
func (s *Session) runTools(ctx context.Context, calls []tools.ToolCall, emit func(Event) bool) []ContentBlock {
	results := make([]ContentBlock, 0, len(calls))
	for _, call := range calls {
		emit(EventToolStarted{Call: call})

		toolCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
		result := s.cfg.Tools.Execute(toolCtx, call)
		cancel()

		emit(EventToolFinished{Call: call, Result: result.Content, IsError: result.IsError})
		results = append(results, ContentBlock{
			Type:      BlockToolResult,
			ToolUseID: call.ID,
			Content:   result.Content,
			IsError:   result.IsError,
		})
	}
	return results
}

func (s *Session) historyLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

func (s *Session) appendTurn(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, m)
}

// appendToLastUserTurn adds a text block to the trailing user turn, or a new
// user turn when the conversation ends with the assistant.
func (s *Session) appendToLastUserTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 && s.history[n-1].Role == RoleUser {
		last := s.history[n-1]
		last.Content = append(slices.Clone(last.Content), ContentBlock{Type: BlockText, Text: text})
		s.history[n-1] = last
		return
	}
	s.history = append(s.history, TextMessage(RoleUser, text))
}

func (s *Session) truncateHistory(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.history[n:])
	s.history = s.history[:n]
}
