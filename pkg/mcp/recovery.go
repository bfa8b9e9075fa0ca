package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// RecoveryAction says how to react to a failed MCP call.
type RecoveryAction int

const (
	// NoRetry covers timeouts, cancellation, protocol errors and anything unknown.
	NoRetry RecoveryAction = iota
	// RetrySameSession retries on the existing session.
	RetrySameSession
	// RetryNewSession reconnects before retrying.
	RetryNewSession
)

func (a RecoveryAction) String() string {
	switch a {
	case RetrySameSession:
		return "retry_same_session"
	case RetryNewSession:
		return "retry_new_session"
	default:
		return "no_retry"
	}
}

const (
	// InitTimeout bounds transport setup plus the MCP handshake.
	InitTimeout = 30 * time.Second

	// ReinitTimeout bounds a reconnect during recovery.
	ReinitTimeout = 10 * time.Second

	// OperationTimeout bounds a single ListTools or CallTool. The agent's
	// tool_timeout is usually tighter.
	OperationTimeout = 90 * time.Second

	// HealthTimeout bounds one health check.
	HealthTimeout = 5 * time.Second

	RetryBackoffMin = 250 * time.Millisecond
	RetryBackoffMax = 750 * time.Millisecond
)

// ClassifyError maps an MCP call error to a recovery action.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NoRetry
		}
		return RetryNewSession
	}

	if isConnectionError(err) {
		return RetryNewSession
	}
	return NoRetry
}

var connectionErrors = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"connection closed",
	"client is closing",
	"no such host",
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, e := range connectionErrors {
		if strings.Contains(msg, e) {
			return true
		}
	}
	return false
}
