// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/miki/api"
	"github.com/momentics/miki/internal/registry"
	"github.com/momentics/miki/internal/router"
	"github.com/momentics/miki/internal/unread"
)

// Config holds all relay parameters.
type Config struct {
	ListenAddr     string        // TCP bind address, e.g. "127.0.0.1:2203"
	ReadBufferSize int           // bytes per read; one read is one message
	EventCapacity  int           // readiness events handled per wait
	AnnounceToken  bool          // greet each client with "token:<n>\n"
	CacheCapacity  int           // max cached messages across all recipients
	CacheLifetime  time.Duration // TTL for cached messages
	SweepInterval  time.Duration // how often the TTL sweep runs
	PinLoop        bool          // lock the event loop to LoopCPU
	LoopCPU        int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "127.0.0.1:2203",
		ReadBufferSize: 1024,
		EventCapacity:  1024,
		AnnounceToken:  true,
		CacheCapacity:  unread.DefaultCapacity,
		CacheLifetime:  unread.DefaultLifetime,
		SweepInterval:  30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.EventCapacity <= 0 {
		c.EventCapacity = d.EventCapacity
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	if c.CacheLifetime <= 0 {
		c.CacheLifetime = d.CacheLifetime
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}

// Recorder receives every event-loop measurement. control.Metrics
// implements it.
type Recorder interface {
	router.Recorder
	unread.Observer
	ConnectionAccepted()
	ConnectionClosed(reason string)
	AcceptFailed()
	Connections(n int)
	MessageReceived()
	ProtocolError()
	Iteration(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) MessageDelivered()        {}
func (nopRecorder) MessageCached()           {}
func (nopRecorder) MessagesFlushed(int)      {}
func (nopRecorder) SendFailed()              {}
func (nopRecorder) CacheSize(int)            {}
func (nopRecorder) CacheRemoved(string, int) {}
func (nopRecorder) ConnectionAccepted()      {}
func (nopRecorder) ConnectionClosed(string)  {}
func (nopRecorder) AcceptFailed()            {}
func (nopRecorder) Connections(int)          {}
func (nopRecorder) MessageReceived()         {}
func (nopRecorder) ProtocolError()           {}
func (nopRecorder) Iteration(time.Duration)  {}

// Stats is a point-in-time view of the relay, safe to read from any goroutine.
type Stats struct {
	Connections int
	Cached      int
	Accepted    uint64
	Closed      uint64
	Received    uint64
	Dropped     uint64 // malformed messages
}

// counters are written by the loop and read by Stats.
type counters struct {
	connections atomic.Int64
	cached      atomic.Int64
	accepted    atomic.Uint64
	closed      atomic.Uint64
	received    atomic.Uint64
	dropped     atomic.Uint64
}

// Server is the relay context object: it owns the listener, reactor,
// registry, unread cache and router. Everything but Stats, Ready, Addr and
// context cancellation is confined to the goroutine running Run.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
	metrics  Recorder
	archiver api.Archiver

	listener   api.Listener
	reactor    api.Reactor
	waker      api.Waker
	registry   *registry.Registry
	cache      *unread.Cache
	router     *router.Router
	routerOpts []router.Option

	buf       []byte
	events    []api.Event
	nextSweep time.Time

	running atomic.Bool
	ready   atomic.Bool
	stats   counters
}
