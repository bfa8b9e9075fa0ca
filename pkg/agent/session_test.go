package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/sherlog/pkg/incident"
	"github.com/codeready-toolchain/sherlog/pkg/store"
	"github.com/codeready-toolchain/sherlog/pkg/tools"
)

// scriptedLLM replays one chunk script per request and records the inputs.
type scriptedLLM struct {
	mu     sync.Mutex
	turns  [][]Chunk
	inputs []*GenerateInput
}

func (m *scriptedLLM) Generate(_ context.Context, input *GenerateInput) (<-chan Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if len(m.turns) == 0 {
		return nil, errors.New("unexpected oracle request")
	}
	script := m.turns[0]
	m.turns = m.turns[1:]

	ch := make(chan Chunk, len(script))
	for _, c := range script {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (m *scriptedLLM) Close() error { return nil }

func (m *scriptedLLM) requests() []*GenerateInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*GenerateInput(nil), m.inputs...)
}

func replyTurn(stop StopReason, text ...string) []Chunk {
	var out []Chunk
	for _, t := range text {
		out = append(out, &TextChunk{Content: t})
	}
	return append(out, &UsageChunk{InputTokens: 10, OutputTokens: 5}, &StopChunk{Reason: stop})
}

func toolTurn(text string, calls ...*ToolCallChunk) []Chunk {
	var out []Chunk
	if text != "" {
		out = append(out, &TextChunk{Content: text})
	}
	for _, c := range calls {
		out = append(out, c)
	}
	return append(out, &StopChunk{Reason: StopToolUse})
}

func newMemoryTools(t *testing.T) (*tools.Registry, *incident.Service) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	svc := incident.NewService(fs, nil, "operator")
	return tools.NewRegistry(tools.MemoryTools(svc), nil), svc
}

func newTestSession(t *testing.T, llm LLMClient, exec ToolExecutor, mutate ...func(*SessionConfig)) *Session {
	t.Helper()
	cfg := SessionConfig{LLM: llm, Tools: exec, SystemPrompt: "investigate", Model: "test-model"}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewSession(cfg)
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
		}
	}
}

func TestSessionEndTurnStreamsText(t *testing.T) {
	llm := &scriptedLLM{turns: [][]Chunk{replyTurn(StopEndTurn, "Hello ", "Alice.")}}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	events := collect(t, s.Send(context.Background(), "hi"))
	assert.Equal(t, []Event{
		EventText{Delta: "Hello "},
		EventText{Delta: "Alice."},
		EventDone{Reply: "Hello Alice."},
	}, events)

	reqs := llm.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "investigate", reqs[0].System)
	assert.Equal(t, DefaultMaxTokens, reqs[0].MaxTokens)
	assert.Len(t, reqs[0].Tools, 13)
	assert.False(t, reqs[0].DisableTools)

	assert.Equal(t, []Message{
		TextMessage(RoleUser, "hi"),
		TextMessage(RoleAssistant, "Hello Alice."),
	}, s.History())
}

func TestSessionExecutesToolsAndContinues(t *testing.T) {
	create := &ToolCallChunk{
		CallID: "toolu_1",
		Name:   tools.ToolCreateIncident,
		Input:  json.RawMessage(`{"name":"Checkout 500 Errors","severity":"critical","services":["checkout-api"],"description":"Users report 500s at checkout"}`),
	}
	list := &ToolCallChunk{CallID: "toolu_2", Name: tools.ToolListIncidents, Input: json.RawMessage(`{}`)}
	llm := &scriptedLLM{turns: [][]Chunk{
		toolTurn("Opening an incident.", create, list),
		replyTurn(StopEndTurn, "Incident opened."),
	}}
	reg, svc := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	events := collect(t, s.Send(context.Background(), "checkout is throwing 500s"))
	require.Len(t, events, 7)
	assert.Equal(t, EventText{Delta: "Opening an incident."}, events[0])

	started, ok := events[1].(EventToolStarted)
	require.True(t, ok)
	assert.Equal(t, "toolu_1", started.Call.ID)
	finished, ok := events[2].(EventToolFinished)
	require.True(t, ok)
	assert.False(t, finished.IsError, finished.Result)
	assert.Contains(t, finished.Result, `"name":"Checkout 500 Errors"`)

	assert.Equal(t, "toolu_2", events[3].(EventToolStarted).Call.ID)
	assert.Equal(t, "toolu_2", events[4].(EventToolFinished).Call.ID)
	assert.Equal(t, EventText{Delta: "Incident opened."}, events[5])
	assert.Equal(t, EventDone{Reply: "Incident opened."}, events[6])

	digests, err := svc.ListIncidents(context.Background())
	require.NoError(t, err)
	require.Len(t, digests, 1)

	// second request carries the assistant tool_use turn and one user turn
	// answering both calls in order
	reqs := llm.requests()
	require.Len(t, reqs, 2)
	msgs := reqs[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 3)
	assert.Equal(t, BlockToolUse, msgs[1].Content[1].Type)
	assert.Equal(t, RoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	assert.Equal(t, BlockToolResult, msgs[2].Content[0].Type)
	assert.Equal(t, "toolu_1", msgs[2].Content[0].ToolUseID)
	assert.Equal(t, "toolu_2", msgs[2].Content[1].ToolUseID)

	assert.Len(t, s.History(), 4)
}

func TestSessionToolErrorsStayInBand(t *testing.T) {
	llm := &scriptedLLM{turns: [][]Chunk{
		toolTurn("",
			&ToolCallChunk{CallID: "toolu_1", Name: "drop_tables", Input: json.RawMessage(`{}`)},
			&ToolCallChunk{CallID: "toolu_2", Name: tools.ToolGetIncident, Input: json.RawMessage(`{"incident_id":"inc_missing"}`)},
		),
		replyTurn(StopEndTurn, "Neither worked."),
	}}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	var finished []EventToolFinished
	reply, err := s.SendMessage(context.Background(), "go", func(ev Event) {
		if f, ok := ev.(EventToolFinished); ok {
			finished = append(finished, f)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "Neither worked.", reply)

	require.Len(t, finished, 2)
	for _, f := range finished {
		assert.True(t, f.IsError)
		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(f.Result), &payload))
		assert.NotEmpty(t, payload["error"])
	}
	assert.Contains(t, finished[0].Result, "unknown tool")
	assert.Contains(t, finished[1].Result, "not found")

	results := llm.requests()[1].Messages[2].Content
	assert.True(t, results[0].IsError)
	assert.True(t, results[1].IsError)
}

func TestSessionMaxTokensAppendsMarker(t *testing.T) {
	llm := &scriptedLLM{turns: [][]Chunk{
		append([]Chunk{&TextChunk{Content: "The root cause is"}, &ToolCallChunk{CallID: "toolu_cut", Name: "get_incident"}},
			&StopChunk{Reason: StopMaxTokens}),
	}}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	reply, err := s.SendMessage(context.Background(), "why?", nil)
	require.NoError(t, err)
	assert.Equal(t, "The root cause is"+TruncationMarker, reply)

	// the half-emitted tool call is not kept
	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, TextMessage(RoleAssistant, "The root cause is"), history[1])
}

func TestSessionOtherStopReasonReturnsText(t *testing.T) {
	llm := &scriptedLLM{turns: [][]Chunk{replyTurn("stop_sequence", "partial answer")}}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	reply, err := s.SendMessage(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "partial answer", reply)
}

func TestSessionEmptyReplyKeepsRolesAlternating(t *testing.T) {
	llm := &scriptedLLM{turns: [][]Chunk{
		replyTurn(StopEndTurn),
		replyTurn(StopEndTurn, "second"),
	}}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	reply, err := s.SendMessage(context.Background(), "first", nil)
	require.NoError(t, err)
	assert.Empty(t, reply)

	_, err = s.SendMessage(context.Background(), "again", nil)
	require.NoError(t, err)

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, TextMessage(RoleAssistant, EmptyReplyText), history[1])
	for i, m := range history {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		assert.Equal(t, want, m.Role, "turn %d", i)
	}

	// the second request already carries the placeholder turn
	reqs := llm.requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Messages, 3)
	assert.Equal(t, RoleAssistant, reqs[1].Messages[1].Role)
}

func TestSessionOracleFailureRollsBack(t *testing.T) {
	llm := &scriptedLLM{turns: [][]Chunk{
		replyTurn(StopEndTurn, "first"),
		toolTurn("", &ToolCallChunk{CallID: "toolu_1", Name: tools.ToolListIncidents}),
		{&TextChunk{Content: "half"}, &ErrorChunk{Message: "Overloaded", Code: "overloaded_error", Retryable: true}},
		replyTurn(StopEndTurn, "recovered"),
	}}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)
	ctx := context.Background()

	_, err := s.SendMessage(ctx, "one", nil)
	require.NoError(t, err)
	before := s.History()

	_, err = s.SendMessage(ctx, "two", nil)
	require.ErrorIs(t, err, ErrOracle)
	assert.Contains(t, err.Error(), "Overloaded")
	assert.Equal(t, before, s.History(), "failed exchange leaves no trace")

	reply, err := s.SendMessage(ctx, "three", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)

	last := llm.requests()[3].Messages
	require.Len(t, last, 3)
	assert.Equal(t, TextMessage(RoleUser, "three"), last[2])
}

func TestSessionGenerateErrorIsOracleFailure(t *testing.T) {
	llm := &scriptedLLM{} // no scripted turns: Generate fails
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	events := collect(t, s.Send(context.Background(), "hi"))
	require.Len(t, events, 1)
	errEv, ok := events[0].(EventError)
	require.True(t, ok)
	assert.ErrorIs(t, errEv.Err, ErrOracle)
	assert.Empty(t, s.History())
}

func TestSessionStreamWithoutStopReason(t *testing.T) {
	llm := &scriptedLLM{turns: [][]Chunk{{&TextChunk{Content: "dangling"}}}}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	_, err := s.SendMessage(context.Background(), "hi", nil)
	require.ErrorIs(t, err, ErrOracle)
	assert.Contains(t, err.Error(), "without a stop reason")
}

func TestSessionForcesConclusionAtIterationLimit(t *testing.T) {
	list := &ToolCallChunk{CallID: "toolu_x", Name: tools.ToolListIncidents, Input: json.RawMessage(`{}`)}
	llm := &scriptedLLM{turns: [][]Chunk{
		toolTurn("", list),
		toolTurn("", list),
		replyTurn(StopEndTurn, "Here is what I found."),
	}}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg, func(c *SessionConfig) {
		c.MaxIterations = 2
		c.ForcedConclusionPrompt = "WRAP IT UP"
	})

	reply, err := s.SendMessage(context.Background(), "dig", nil)
	require.NoError(t, err)
	assert.Equal(t, "Here is what I found.", reply)

	reqs := llm.requests()
	require.Len(t, reqs, 3)
	assert.False(t, reqs[1].DisableTools)
	assert.True(t, reqs[2].DisableTools)
	assert.Len(t, reqs[2].Tools, 13, "catalog stays in the request")

	msgs := reqs[2].Messages
	lastUser := msgs[len(msgs)-1]
	require.Equal(t, RoleUser, lastUser.Role)
	require.Len(t, lastUser.Content, 2)
	assert.Equal(t, BlockToolResult, lastUser.Content[0].Type)
	assert.Equal(t, ContentBlock{Type: BlockText, Text: "WRAP IT UP"}, lastUser.Content[1])
}

func TestSessionForcedConclusionStillCallingTools(t *testing.T) {
	list := &ToolCallChunk{CallID: "toolu_x", Name: tools.ToolListIncidents, Input: json.RawMessage(`{}`)}
	llm := &scriptedLLM{turns: [][]Chunk{toolTurn("", list), toolTurn("", list)}}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg, func(c *SessionConfig) { c.MaxIterations = 1 })

	_, err := s.SendMessage(context.Background(), "dig", nil)
	require.ErrorIs(t, err, ErrMaxIterations)
	assert.Empty(t, s.History())
}

// blockingLLM holds every request open until its context ends.
type blockingLLM struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingLLM) Generate(ctx context.Context, _ *GenerateInput) (<-chan Chunk, error) {
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		b.once.Do(func() { close(b.started) })
		<-ctx.Done()
	}()
	return ch, nil
}

func (b *blockingLLM) Close() error { return nil }

func TestSessionRejectsConcurrentMessages(t *testing.T) {
	llm := &blockingLLM{started: make(chan struct{})}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	ctx, cancel := context.WithCancel(context.Background())
	first := s.Send(ctx, "one")
	<-llm.started

	events := collect(t, s.Send(context.Background(), "two"))
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].(EventError).Err, ErrSessionBusy)

	cancel()
	collect(t, first)

	// the lock is released once the first exchange ends
	llm2 := &scriptedLLM{turns: [][]Chunk{replyTurn(StopEndTurn, "ok")}}
	s.cfg.LLM = llm2
	reply, err := s.SendMessage(context.Background(), "three", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestSessionLLMTimeout(t *testing.T) {
	llm := &blockingLLM{started: make(chan struct{})}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg, func(c *SessionConfig) { c.LLMTimeout = 20 * time.Millisecond })

	_, err := s.SendMessage(context.Background(), "hi", nil)
	require.ErrorIs(t, err, ErrOracle)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, s.History())
}

func TestSessionCancelledContext(t *testing.T) {
	llm := &blockingLLM{started: make(chan struct{})}
	reg, _ := newMemoryTools(t)
	s := newTestSession(t, llm, reg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-llm.started
		cancel()
	}()

	_, err := s.SendMessage(ctx, "hi", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.History())
}

// deadlineExecutor records whether each call ran under a deadline.
type deadlineExecutor struct {
	hadDeadline []bool
}

func (d *deadlineExecutor) Definitions() []tools.Definition {
	return []tools.Definition{{Name: "query_range", InputSchema: tools.Schema{"type": "object"}}}
}

func (d *deadlineExecutor) Execute(ctx context.Context, call tools.ToolCall) *tools.ToolResult {
	_, ok := ctx.Deadline()
	d.hadDeadline = append(d.hadDeadline, ok)
	return &tools.ToolResult{CallID: call.ID, Name: call.Name, Content: "3 lines"}
}

func TestSessionToolCallsRunUnderDeadline(t *testing.T) {
	llm := &scriptedLLM{turns: [][]Chunk{
		toolTurn("", &ToolCallChunk{CallID: "a", Name: "query_range"}, &ToolCallChunk{CallID: "b", Name: "query_range"}),
		replyTurn(StopEndTurn, "done"),
	}}
	exec := &deadlineExecutor{}
	s := newTestSession(t, llm, exec, func(c *SessionConfig) { c.ToolTimeout = time.Minute })

	_, err := s.SendMessage(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, exec.hadDeadline)
}

func TestSessionsAreIndependent(t *testing.T) {
	reg, _ := newMemoryTools(t)
	a := newTestSession(t, &scriptedLLM{turns: [][]Chunk{replyTurn(StopEndTurn, "A")}}, reg)
	b := newTestSession(t, &scriptedLLM{turns: [][]Chunk{replyTurn(StopEndTurn, "B")}}, reg)

	_, err := a.SendMessage(context.Background(), "to a", nil)
	require.NoError(t, err)
	assert.Len(t, a.History(), 2)
	assert.Empty(t, b.History())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestNewSessionValidation(t *testing.T) {
	reg, _ := newMemoryTools(t)

	_, err := NewSession(SessionConfig{Tools: reg})
	assert.ErrorContains(t, err, "LLM client")
	_, err = NewSession(SessionConfig{LLM: &scriptedLLM{}})
	assert.ErrorContains(t, err, "tool executor")

	s, err := NewSession(SessionConfig{LLM: &scriptedLLM{}, Tools: reg})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, s.cfg.MaxIterations)
	assert.Equal(t, DefaultLLMTimeout, s.cfg.LLMTimeout)
	assert.Equal(t, DefaultToolTimeout, s.cfg.ToolTimeout)
}
