// File: server/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event handlers of the relay loop. Registrations are edge-triggered, so
// every handler drains its descriptor until api.ErrWouldBlock.

package server

import (
	"context"
	"errors"

	"github.com/momentics/miki/api"
	"github.com/momentics/miki/internal/registry"
	"github.com/momentics/miki/protocol"
	"github.com/momentics/miki/reactor"
)

// maxAcceptFailures bounds consecutive non-fatal accept errors per event.
const maxAcceptFailures = 16

func (s *Server) dispatch(ctx context.Context, events []api.Event) error {
	for _, ev := range events {
		switch ev.Token {
		case api.WakeToken:
			if err := s.waker.Drain(); err != nil {
				s.log.Warn().Err(err).Msg("waker drain failed")
			}
		case api.ListenerToken:
			if err := s.acceptAll(ctx); err != nil {
				return err
			}
		default:
			if reactor.Readable(ev) {
				s.readAll(ctx, ev.Token)
			}
		}
	}
	return nil
}

func (s *Server) acceptAll(ctx context.Context) error {
	failures := 0
	for {
		conn, err := s.registry.Accept(s.listener)
		if errors.Is(err, api.ErrWouldBlock) {
			return nil
		}
		if err != nil {
			if api.Classify(err) == api.SeverityFatal {
				s.log.Error().Err(err).Msg("listener failed")
				return err
			}
			s.metrics.AcceptFailed()
			s.log.Warn().Err(err).Msg("accept failed")
			failures++
			if failures >= maxAcceptFailures {
				return nil
			}
			continue
		}
		s.onAccepted(ctx, conn)
	}
}

// onAccepted greets the client, flushes its unread mail and only then
// registers it for readable events.
func (s *Server) onAccepted(ctx context.Context, conn *registry.Connection) {
	s.stats.accepted.Add(1)
	s.metrics.ConnectionAccepted()
	s.log.Info().Stringer("token", conn.Token).Str("remote", conn.Socket.RemoteAddr()).Msg("client connected")

	if s.cfg.AnnounceToken {
		if _, err := conn.Socket.Write(protocol.Greeting(conn.Token)); err != nil {
			s.log.Warn().Err(err).Stringer("token", conn.Token).Msg("greeting failed")
			s.closeConn(conn.Token, "write_error")
			return
		}
	}

	failed := false
	for _, err := range s.router.FlushUnread(ctx, conn) {
		if err != nil {
			s.log.Warn().Err(err).Stringer("token", conn.Token).Msg("unread delivery failed")
			failed = true
		}
	}
	if failed {
		s.closeConn(conn.Token, "write_error")
		return
	}

	if err := s.reactor.Register(conn.Socket.Fd(), conn.Token, conn.Interest); err != nil {
		s.log.Error().Err(err).Stringer("token", conn.Token).Msg("register failed")
		s.closeConn(conn.Token, "register_error")
	}
}

func (s *Server) readAll(ctx context.Context, token api.Token) {
	for {
		msg, err := s.registry.ReadFrom(token, s.buf)
		if err == nil {
			s.stats.received.Add(1)
			s.metrics.MessageReceived()
			s.route(ctx, msg)
			continue
		}

		var protoErr *api.ProtocolError
		switch {
		case errors.Is(err, api.ErrWouldBlock), errors.Is(err, api.ErrUnknownConnection):
			return
		case errors.Is(err, api.ErrReceivedZeroBytes):
			// already removed by the registry
			s.closed(token, "peer")
			return
		case errors.As(err, &protoErr):
			s.stats.dropped.Add(1)
			s.metrics.ProtocolError()
			s.log.Warn().Err(err).Stringer("token", token).Msg("dropping malformed message")
		default:
			s.log.Warn().Err(err).Stringer("token", token).Msg("read failed")
			s.closeConn(token, "read_error")
			return
		}
	}
}

func (s *Server) route(ctx context.Context, msg api.Message) {
	err := s.router.DirectSend(ctx, msg)
	var sendErr *api.SendError
	switch {
	case err == nil:
		s.log.Debug().Stringer("from", msg.From).Stringer("to", msg.To).Msg("message sent")
	case errors.Is(err, api.ErrUserOffline):
		s.log.Debug().Stringer("from", msg.From).Stringer("to", msg.To).Msg("user offline")
	case errors.As(err, &sendErr):
		s.log.Warn().Err(err).Stringer("from", msg.From).Msg("delivery failed, dropping recipient")
		s.closeConn(sendErr.Token, "write_error")
	default:
		s.log.Error().Err(err).Msg("unexpected routing error")
	}
}

// closeConn tears down one connection without affecting the loop.
func (s *Server) closeConn(token api.Token, reason string) {
	conn, ok := s.registry.Get(token)
	if !ok {
		return
	}
	// ignore errors: closing the fd drops the registration anyway
	_ = s.reactor.Unregister(conn.Socket.Fd())
	s.registry.Remove(token)
	s.closed(token, reason)
}

func (s *Server) closed(token api.Token, reason string) {
	s.stats.closed.Add(1)
	s.metrics.ConnectionClosed(reason)
	s.log.Info().Stringer("token", token).Str("reason", reason).Msg("client disconnected")
}
