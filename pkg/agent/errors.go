package agent

import "errors"

var (
	// ErrOracle is returned when the completion oracle fails or its stream
	// breaks. The message is not kept in the conversation.
	ErrOracle = errors.New("completion oracle failed")

	// ErrSessionBusy is returned when a message is sent while another is
	// still being processed on the same session.
	ErrSessionBusy = errors.New("session is busy with another message")

	// ErrMaxIterations is returned when the oracle keeps requesting tools
	// after it was told to conclude.
	ErrMaxIterations = errors.New("iteration limit reached without a final answer")
)
