// Package fake
// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync"

	"github.com/momentics/miki/api"
)

// Listener is a fake api.Listener handing out queued sockets.
type Listener struct {
	mu      sync.Mutex
	fd      uintptr
	pending []api.Socket
	errs    []error
	closed  bool
}

// NewListener creates a fake listener identified by fd.
func NewListener(fd uintptr) *Listener {
	return &Listener{fd: fd}
}

// Enqueue makes s the next pending connection.
func (l *Listener) Enqueue(s api.Socket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, s)
}

// FailNext makes the next Accept return err before any pending socket.
func (l *Listener) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

// Fd implements api.Listener.Fd.
func (l *Listener) Fd() uintptr { return l.fd }

// Addr implements api.Listener.Addr.
func (l *Listener) Addr() string { return "fake:listener" }

// Accept implements api.Listener.Accept.
func (l *Listener) Accept() (api.Socket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, &api.ConnectionError{Err: api.ErrClosed}
	}
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		return nil, err
	}
	if len(l.pending) == 0 {
		return nil, api.ErrWouldBlock
	}
	s := l.pending[0]
	l.pending = l.pending[1:]
	return s, nil
}

// Close implements api.Listener.Close.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Closed reports whether Close was called.
func (l *Listener) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
