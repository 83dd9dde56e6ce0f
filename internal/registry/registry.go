// File: internal/registry/registry.go
// Package registry
// Author: momentics <momentics@gmail.com>
//
// Connection registry: owns every live socket, hands out tokens and
// remembers registration order. Not safe for concurrent use; it is owned
// by the event loop goroutine.

package registry

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/miki/api"
	"github.com/momentics/miki/protocol"
)

// Connection owns exactly one socket.
type Connection struct {
	Token    api.Token
	Socket   api.Socket
	Interest api.EventType
	Accepted time.Time
}

// Registry maps tokens to live connections.
type Registry struct {
	conns map[api.Token]*Connection
	order []api.Token
	next  api.Token
	now   func() time.Time
	log   zerolog.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the clock used to stamp connections and messages.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l.With().Str("component", "registry").Logger() }
}

// New creates an empty registry whose first token is api.FirstToken.
func New(opts ...Option) *Registry {
	r := &Registry{
		conns: make(map[api.Token]*Connection),
		next:  api.FirstToken,
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Accept pulls one pending connection from l and registers it under the
// next token. It returns api.ErrWouldBlock when nothing is pending.
func (r *Registry) Accept(l api.Listener) (*Connection, error) {
	if r.next.Reserved() {
		return nil, &api.ConnectionError{Err: api.ErrTokensExhausted}
	}
	sock, err := l.Accept()
	if err != nil {
		if errors.Is(err, api.ErrWouldBlock) {
			return nil, api.ErrWouldBlock
		}
		var ce *api.ConnectionError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &api.ConnectionError{Err: err}
	}

	conn := &Connection{
		Token:    r.next,
		Socket:   sock,
		Interest: api.EventRead,
		Accepted: r.now(),
	}
	r.next++
	r.order = append(r.order, conn.Token)
	r.conns[conn.Token] = conn
	r.log.Debug().Stringer("token", conn.Token).Str("remote", sock.RemoteAddr()).Msg("accepted")
	return conn, nil
}

// Register inserts or overwrites conn by its token.
func (r *Registry) Register(conn *Connection) {
	if _, ok := r.conns[conn.Token]; !ok {
		r.order = append(r.order, conn.Token)
	}
	r.conns[conn.Token] = conn
}

// Remove closes and forgets the connection. It reports whether the token
// was registered.
func (r *Registry) Remove(token api.Token) bool {
	conn, ok := r.conns[token]
	if !ok {
		return false
	}
	delete(r.conns, token)
	r.prune(token)
	if err := conn.Socket.Close(); err != nil {
		r.log.Debug().Err(err).Stringer("token", token).Msg("close failed")
	}
	return true
}

// prune drops token from the order sequence so MostRecent never resolves
// to a disconnected peer.
func (r *Registry) prune(token api.Token) {
	for i := len(r.order) - 1; i >= 0; i-- {
		if r.order[i] == token {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// Get looks up a live connection.
func (r *Registry) Get(token api.Token) (*Connection, bool) {
	conn, ok := r.conns[token]
	return conn, ok
}

// MostRecent returns the most recently registered live connection.
func (r *Registry) MostRecent() (*Connection, error) {
	if len(r.order) == 0 {
		return nil, api.ErrNoConnections
	}
	return r.conns[r.order[len(r.order)-1]], nil
}

// ReadFrom reads one chunk from token's socket and decodes it.
//
// A zero-byte read removes the connection and returns
// api.ErrReceivedZeroBytes. A drained socket yields api.ErrWouldBlock.
// A malformed payload yields *api.ProtocolError and the connection stays.
func (r *Registry) ReadFrom(token api.Token, buf []byte) (api.Message, error) {
	conn, ok := r.conns[token]
	if !ok {
		return api.Message{}, api.ErrUnknownConnection
	}
	n, err := conn.Socket.Read(buf)
	switch {
	case errors.Is(err, api.ErrWouldBlock):
		return api.Message{}, api.ErrWouldBlock
	case err != nil:
		return api.Message{}, &api.ReceiveError{Token: token, Err: err}
	case n == 0:
		r.Remove(token)
		return api.Message{}, api.ErrReceivedZeroBytes
	}
	return protocol.Decode(token, buf[:n], r.now())
}

// Len returns the number of live connections.
func (r *Registry) Len() int { return len(r.conns) }

// Tokens returns live tokens in registration order.
func (r *Registry) Tokens() []api.Token {
	out := make([]api.Token, len(r.order))
	copy(out, r.order)
	return out
}

// CloseAll closes and removes every connection.
func (r *Registry) CloseAll() {
	for _, t := range r.Tokens() {
		r.Remove(t)
	}
}
