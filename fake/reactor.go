// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"errors"
	"sync"
	"time"

	"github.com/momentics/miki/api"
)

// Reactor is a scriptable api.Reactor: tests trigger readiness explicitly.
type Reactor struct {
	mu          sync.Mutex
	registered  map[uintptr]api.Token
	pending     []api.Event
	notify      chan struct{}
	registerErr error
	closed      bool
}

// NewReactor creates an empty fake reactor.
func NewReactor() *Reactor {
	return &Reactor{
		registered: make(map[uintptr]api.Token),
		notify:     make(chan struct{}, 1),
	}
}

// Register implements api.Reactor.Register.
func (r *Reactor) Register(fd uintptr, token api.Token, _ api.EventType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return r.registerErr
	}
	if _, ok := r.registered[fd]; ok {
		return errors.New("fake reactor: fd already registered")
	}
	r.registered[fd] = token
	return nil
}

// Unregister implements api.Reactor.Unregister.
func (r *Reactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, fd)
	return nil
}

// Wait implements api.Reactor.Wait.
func (r *Reactor) Wait(events []api.Event, timeout time.Duration) (int, error) {
	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return 0, api.ErrClosed
		}
		if len(r.pending) > 0 {
			n := copy(events, r.pending)
			r.pending = r.pending[n:]
			r.mu.Unlock()
			return n, nil
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-timer:
			return 0, nil
		}
	}
}

// Close implements api.Reactor.Close.
func (r *Reactor) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
	return nil
}

// Trigger queues a readiness event for token.
func (r *Reactor) Trigger(token api.Token, typ api.EventType) {
	r.mu.Lock()
	r.pending = append(r.pending, api.Event{Token: token, Type: typ})
	r.mu.Unlock()
	r.signal()
}

// SetRegisterError makes every later Register fail with err.
func (r *Reactor) SetRegisterError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerErr = err
}

// Registered returns the token fd was registered under.
func (r *Reactor) Registered(fd uintptr) (api.Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.registered[fd]
	return t, ok
}

func (r *Reactor) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Waker wakes a fake Reactor by queueing a WakeToken event.
type Waker struct {
	r  *Reactor
	fd uintptr
}

// NewWaker binds a waker to r.
func NewWaker(r *Reactor, fd uintptr) *Waker {
	return &Waker{r: r, fd: fd}
}

func (w *Waker) Fd() uintptr  { return w.fd }
func (w *Waker) Wake() error  { w.r.Trigger(api.WakeToken, api.EventRead); return nil }
func (w *Waker) Drain() error { return nil }
func (w *Waker) Close() error { return nil }
