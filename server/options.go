// File: server/options.go
// Package server defines functional options for the relay Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/miki/api"
	"github.com/momentics/miki/internal/router"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the base logger; components derive children from it.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithMetrics installs the measurement sink.
func WithMetrics(m Recorder) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithArchiver receives messages evicted or expired from the unread cache.
func WithArchiver(a api.Archiver) ServerOption {
	return func(s *Server) { s.archiver = a }
}

// WithClock overrides the wall clock used for message timestamps and sweeps.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) { s.now = now }
}

// WithListener uses l instead of binding Config.ListenAddr.
func WithListener(l api.Listener) ServerOption {
	return func(s *Server) { s.listener = l }
}

// WithReactor uses r and w instead of the platform backend.
func WithReactor(r api.Reactor, w api.Waker) ServerOption {
	return func(s *Server) {
		s.reactor = r
		s.waker = w
	}
}

// WithTracer sets the tracer used for routing spans.
func WithTracer(t trace.Tracer) ServerOption {
	return func(s *Server) { s.routerOpts = append(s.routerOpts, router.WithTracer(t)) }
}
