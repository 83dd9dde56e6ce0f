// File: api/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket and listener contracts used by the connection registry.

package api

// Socket is a non-blocking stream socket owned by exactly one connection.
// Read returns (0, nil) when the peer closed and ErrWouldBlock once drained.
type Socket interface {
	Fd() uintptr
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	RemoteAddr() string
}

// Listener hands out pending inbound sockets. Accept returns ErrWouldBlock
// when no connection is pending.
type Listener interface {
	Fd() uintptr
	Accept() (Socket, error)
	Addr() string
	Close() error
}

// Archiver receives messages that left the unread cache undelivered.
// Archive must not block the caller.
type Archiver interface {
	Archive(msg Message, reason ArchiveReason)
}
