// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for the readiness reactor that multiplexes
// the listener and every client socket on one goroutine.

package api

import "time"

// EventType is a readiness bitmask.
type EventType uint32

const (
	EventRead EventType = 1 << iota
	EventWrite
	EventHangup
	EventError
)

// Event encapsulates one OS-level readiness notification.
type Event struct {
	Token Token
	Type  EventType
}

// Reactor multiplexes readiness of many descriptors keyed by Token.
// Registrations are edge-triggered.
type Reactor interface {
	// Register associates fd with token for the given interest.
	Register(fd uintptr, token Token, interest EventType) error

	// Unregister removes fd from the interest set.
	Unregister(fd uintptr) error

	// Wait blocks until at least one event is ready or timeout elapses
	// (timeout < 0 blocks indefinitely) and fills events.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Close releases the backend.
	Close() error
}

// Waker interrupts a blocked Reactor.Wait from another goroutine.
type Waker interface {
	Fd() uintptr
	Wake() error
	Drain() error
	Close() error
}
