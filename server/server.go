// File: server/server.go
// Package server runs the relay: one goroutine, one readiness reactor,
// every socket multiplexed on it.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/miki/affinity"
	"github.com/momentics/miki/api"
	"github.com/momentics/miki/internal/registry"
	"github.com/momentics/miki/internal/router"
	"github.com/momentics/miki/internal/unread"
	"github.com/momentics/miki/reactor"
	"github.com/momentics/miki/transport/tcp"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNoWaker        = errors.New("server: reactor supplied without a waker")
)

// New builds the relay context object. Unless replaced by options it binds
// cfg.ListenAddr and opens the platform reactor.
func New(cfg Config, opts ...ServerOption) (*Server, error) {
	s := &Server{
		cfg:     cfg.withDefaults(),
		log:     zerolog.Nop(),
		now:     time.Now,
		metrics: nopRecorder{},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("component", "server").Logger()

	if s.reactor != nil && s.waker == nil {
		return nil, ErrNoWaker
	}

	ownListener := false
	if s.listener == nil {
		l, err := tcp.Listen(s.cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
		}
		s.listener = l
		ownListener = true
	}
	// an injected listener stays with the caller
	closeListener := func() {
		if ownListener {
			s.listener.Close()
		}
	}
	if s.reactor == nil {
		r, err := reactor.New()
		if err != nil {
			closeListener()
			return nil, err
		}
		w, err := reactor.NewWaker()
		if err != nil {
			r.Close()
			closeListener()
			return nil, err
		}
		s.reactor, s.waker = r, w
	}

	cacheOpts := []unread.Option{
		unread.WithClock(s.now),
		unread.WithLogger(s.log),
		unread.WithObserver(s.metrics),
	}
	if s.archiver != nil {
		cacheOpts = append(cacheOpts, unread.WithArchiver(s.archiver))
	}
	s.registry = registry.New(registry.WithClock(s.now), registry.WithLogger(s.log))
	s.cache = unread.New(s.cfg.CacheCapacity, s.cfg.CacheLifetime, cacheOpts...)
	s.router = router.New(s.registry, s.cache, append([]router.Option{
		router.WithLogger(s.log),
		router.WithRecorder(s.metrics),
	}, s.routerOpts...)...)

	s.buf = make([]byte, s.cfg.ReadBufferSize)
	s.events = make([]api.Event, s.cfg.EventCapacity)
	return s, nil
}

// Addr returns the bound relay address.
func (s *Server) Addr() string { return s.listener.Addr() }

// Ready reports whether Run is accepting connections.
func (s *Server) Ready() bool { return s.ready.Load() }

// Stats returns the counters published after the latest loop iteration.
func (s *Server) Stats() Stats {
	return Stats{
		Connections: int(s.stats.connections.Load()),
		Cached:      int(s.stats.cached.Load()),
		Accepted:    s.stats.accepted.Load(),
		Closed:      s.stats.closed.Load(),
		Received:    s.stats.received.Load(),
		Dropped:     s.stats.dropped.Load(),
	}
}

// Run drives the event loop until ctx is cancelled (returning nil) or a
// listener-level failure occurs. Either way every connection, the listener
// and the reactor are closed on return. Run may be called once.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.shutdown()

	if s.cfg.PinLoop {
		release, err := affinity.PinCurrentThread(s.cfg.LoopCPU)
		if err != nil {
			s.log.Warn().Err(err).Int("cpu", s.cfg.LoopCPU).Msg("event loop not pinned")
		} else {
			defer release()
			s.log.Debug().Int("cpu", s.cfg.LoopCPU).Msg("event loop pinned")
		}
	}

	if err := s.reactor.Register(s.listener.Fd(), api.ListenerToken, api.EventRead); err != nil {
		return fmt.Errorf("register listener: %w", err)
	}
	if err := s.reactor.Register(s.waker.Fd(), api.WakeToken, api.EventRead); err != nil {
		return fmt.Errorf("register waker: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		if err := s.waker.Wake(); err != nil {
			s.log.Error().Err(err).Msg("wake failed")
		}
	})
	defer stop()

	s.nextSweep = s.now().Add(s.cfg.SweepInterval)
	s.ready.Store(true)
	s.log.Info().Str("addr", s.Addr()).Msg("relay listening")

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := s.reactor.Wait(s.events, s.untilSweep())
		if err != nil {
			s.log.Error().Err(err).Msg("reactor wait failed")
			return fmt.Errorf("reactor wait: %w", err)
		}
		start := time.Now()
		if err := s.dispatch(ctx, s.events[:n]); err != nil {
			return err
		}
		s.maybeSweep()
		s.publish()
		if n > 0 {
			s.metrics.Iteration(time.Since(start))
		}
	}
}

func (s *Server) shutdown() {
	s.ready.Store(false)
	for _, t := range s.registry.Tokens() {
		s.closeConn(t, "shutdown")
	}
	if err := s.listener.Close(); err != nil {
		s.log.Warn().Err(err).Msg("listener close failed")
	}
	s.waker.Close()
	s.reactor.Close()
	s.publish()
	s.log.Info().Msg("relay stopped")
}

func (s *Server) untilSweep() time.Duration {
	d := s.nextSweep.Sub(s.now())
	if d < 0 {
		return 0
	}
	return d
}

func (s *Server) maybeSweep() {
	now := s.now()
	if now.Before(s.nextSweep) {
		return
	}
	if n := s.cache.SweepExpired(); n > 0 {
		s.log.Info().Int("expired", n).Msg("unread messages expired")
	}
	s.nextSweep = now.Add(s.cfg.SweepInterval)
}

func (s *Server) publish() {
	conns := s.registry.Len()
	s.stats.connections.Store(int64(conns))
	s.stats.cached.Store(int64(s.cache.Len()))
	s.metrics.Connections(conns)
}
