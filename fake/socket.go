// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for all core interfaces.

package fake

import (
	"strconv"
	"strings"
	"sync"

	"github.com/momentics/miki/api"
)

// Socket is a fake implementation of api.Socket for testing.
// Each fed chunk is returned by exactly one Read, mirroring one TCP segment.
type Socket struct {
	mu         sync.Mutex
	fd         uintptr
	remote     string
	inbound    [][]byte
	writes     [][]byte
	peerClosed bool
	closed     bool
	readErr    error
	writeErr   error
}

// NewSocket creates a fake socket identified by fd.
func NewSocket(fd uintptr) *Socket {
	return &Socket{fd: fd, remote: "fake:" + strconv.FormatUint(uint64(fd), 10)}
}

// Fd implements api.Socket.Fd.
func (s *Socket) Fd() uintptr { return s.fd }

// RemoteAddr implements api.Socket.RemoteAddr.
func (s *Socket) RemoteAddr() string { return s.remote }

// Read implements api.Socket.Read.
func (s *Socket) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, api.ErrClosed
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	if len(s.inbound) > 0 {
		chunk := s.inbound[0]
		n := copy(p, chunk)
		if n < len(chunk) {
			s.inbound[0] = chunk[n:]
		} else {
			s.inbound = s.inbound[1:]
		}
		return n, nil
	}
	if s.peerClosed {
		return 0, nil
	}
	return 0, api.ErrWouldBlock
}

// Write implements api.Socket.Write.
func (s *Socket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, api.ErrClosed
	}
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	s.writes = append(s.writes, buf)
	return len(p), nil
}

// Close implements api.Socket.Close.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Feed queues data to be returned by a later Read.
func (s *Socket) Feed(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = append(s.inbound, []byte(data))
}

// Hangup makes Read report an orderly peer shutdown once queued data is consumed.
func (s *Socket) Hangup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerClosed = true
}

// SetReadError configures the socket to return an error on Read.
func (s *Socket) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// SetWriteError configures the socket to return an error on Write.
func (s *Socket) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Writes returns every Write payload in order.
func (s *Socket) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.writes))
	for i, w := range s.writes {
		out[i] = string(w)
	}
	return out
}

// Written returns all written bytes concatenated.
func (s *Socket) Written() string {
	return strings.Join(s.Writes(), "")
}

// Closed reports whether Close was called.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
