// Package api
// Author: momentics <momentics@gmail.com>
//
// Relay error taxonomy and severity classification.

package api

import (
	"errors"
	"fmt"
	"syscall"
)

// Common errors used across the relay.
var (
	ErrWouldBlock        = errors.New("operation would block")
	ErrReceivedZeroBytes = errors.New("received zero bytes")
	ErrUserOffline       = errors.New("user offline")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNoConnections     = errors.New("no registered connections")
	ErrTokensExhausted   = errors.New("connection tokens exhausted")
	ErrReservedToken     = errors.New("reserved token")
	ErrClosed            = errors.New("use of closed resource")
)

// Severity says how far the consequences of an error reach.
type Severity int

const (
	// SeverityIgnorable errors are logged and otherwise dropped.
	SeverityIgnorable Severity = iota
	// SeverityConnection errors tear down one connection.
	SeverityConnection
	// SeverityFatal errors stop the event loop.
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityIgnorable:
		return "ignorable"
	case SeverityConnection:
		return "connection"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ConnectionError reports a failure to accept a pending connection.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not accept: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ReceiveError reports a socket read failure.
type ReceiveError struct {
	Token Token
	Err   error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("socket read error on %s: %v", e.Token, e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }

// SendError reports a socket write failure.
type SendError struct {
	Token Token
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("socket write error on %s: %v", e.Token, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed wire message.
type ProtocolError struct {
	Reason string
	Input  string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s (%q): %v", e.Reason, e.Input, e.Err)
	}
	return fmt.Sprintf("protocol error: %s (%q)", e.Reason, e.Input)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Classify maps an error to the scope it must be handled in.
// Only listener-level exhaustion is fatal; anything attributable to a
// single client stays local to that client.
func Classify(err error) Severity {
	if err == nil {
		return SeverityIgnorable
	}
	var (
		connErr  *ConnectionError
		recvErr  *ReceiveError
		sendErr  *SendError
		protoErr *ProtocolError
	)
	switch {
	case errors.As(err, &connErr):
		if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
			errors.Is(err, ErrTokensExhausted) || errors.Is(err, ErrClosed) {
			return SeverityFatal
		}
		return SeverityIgnorable
	case errors.As(err, &protoErr):
		return SeverityIgnorable
	case errors.As(err, &recvErr), errors.As(err, &sendErr):
		return SeverityConnection
	case errors.Is(err, ErrReceivedZeroBytes):
		return SeverityConnection
	case errors.Is(err, ErrWouldBlock), errors.Is(err, ErrUserOffline), errors.Is(err, ErrUnknownConnection):
		return SeverityIgnorable
	default:
		return SeverityFatal
	}
}
