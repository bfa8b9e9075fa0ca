package agent

import "github.com/codeready-toolchain/sherlog/pkg/tools"

// Event is one item on the channel returned by Session.Send. The channel
// ends with exactly one EventDone or EventError unless the caller's context
// is cancelled first.
type Event interface {
	isEvent()
}

// EventText is a streamed fragment of the assistant's reply.
type EventText struct{ Delta string }

// EventToolStarted is emitted before a tool call is dispatched.
type EventToolStarted struct{ Call tools.ToolCall }

// EventToolFinished is emitted after a tool call returns. IsError is set when
// Result is an {"error": ...} payload.
type EventToolFinished struct {
	Call    tools.ToolCall
	Result  string
	IsError bool
}

// EventDone carries the final reply.
type EventDone struct{ Reply string }

// EventError ends an exchange that produced no reply.
type EventError struct{ Err error }

func (EventText) isEvent()         {}
func (EventToolStarted) isEvent()  {}
func (EventToolFinished) isEvent() {}
func (EventDone) isEvent()         {}
func (EventError) isEvent()        {}

// Observer receives events from Session.SendMessage.
type Observer func(Event)
