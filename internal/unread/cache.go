// File: internal/unread/cache.go
// Package unread
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unread cache: per-recipient FIFO queues of undelivered messages plus a
// global timestamp heap driving capacity eviction and TTL expiry.
// Not safe for concurrent use; it is owned by the event loop goroutine.

package unread

import (
	"container/heap"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/miki/api"
)

const (
	DefaultCapacity = 100
	DefaultLifetime = 300 * time.Second
)

// Removal reasons reported to an Observer.
const (
	ReasonDelivered = "delivered"
	ReasonEvicted   = "evicted"
	ReasonExpired   = "expired"
)

// Observer receives cache size changes. control.Metrics implements it.
type Observer interface {
	CacheSize(n int)
	CacheRemoved(reason string, n int)
}

// Cache holds messages for offline recipients.
//
// Size always equals the sum of queue lengths, and outside of a call the
// heap holds exactly the live entries.
type Cache struct {
	queues   map[api.Token]*queue.Queue
	heap     entryHeap
	size     int
	seq      uint64
	capacity int
	lifetime time.Duration

	now      func() time.Time
	archiver api.Archiver
	observer Observer
	log      zerolog.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the clock used by SweepExpired and Sweep.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithArchiver receives every message that leaves the cache undelivered.
func WithArchiver(a api.Archiver) Option {
	return func(c *Cache) { c.archiver = a }
}

// WithObserver reports size changes.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// WithLogger sets the cache logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.log = l.With().Str("component", "unread").Logger() }
}

// New creates a cache holding at most capacity messages for at most lifetime.
// Non-positive values fall back to DefaultCapacity and DefaultLifetime.
func New(capacity int, lifetime time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	c := &Cache{
		queues:   make(map[api.Token]*queue.Queue),
		capacity: capacity,
		lifetime: lifetime,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Insert queues msg for msg.To, evicting the oldest entries first when full.
func (c *Cache) Insert(msg api.Message) {
	evicted := 0
	for c.size >= c.capacity && c.evictOldest() {
		evicted++
	}
	if evicted > 0 {
		c.log.Debug().Int("evicted", evicted).Int("capacity", c.capacity).Msg("capacity reached")
		c.removed(ReasonEvicted, evicted)
	}

	c.seq++
	e := &entry{msg: msg, ts: msg.Timestamp, seq: c.seq}
	heap.Push(&c.heap, e)
	c.size++

	q, ok := c.queues[msg.To]
	if !ok {
		q = queue.New()
		c.queues[msg.To] = q
	}
	q.Add(e)
	c.report()
}

// Remove drops every message queued for token, tombstoning them in the heap
// and collecting the tombstones right away. It returns how many were dropped.
func (c *Cache) Remove(token api.Token) int {
	q, ok := c.queues[token]
	if !ok {
		return 0
	}
	n := q.Length()
	c.size -= n
	for i := 0; i < n; i++ {
		c.bury(q.Get(i).(*entry))
	}
	c.Collect()
	delete(c.queues, token)
	c.removed(ReasonDelivered, n)
	c.report()
	return n
}

// Extract returns token's pending messages in insertion order.
func (c *Cache) Extract(token api.Token) ([]api.Message, bool) {
	q, ok := c.queues[token]
	if !ok {
		return nil, false
	}
	out := make([]api.Message, q.Length())
	for i := range out {
		out[i] = q.Get(i).(*entry).msg
	}
	return out, true
}

// Collect pops tombstoned entries off the heap. Live entries are never touched.
func (c *Cache) Collect() int {
	n := 0
	for e := c.heap.peek(); e != nil && e.tombstone(); e = c.heap.peek() {
		heap.Pop(&c.heap)
		n++
	}
	return n
}

// Sweep removes every live entry older than maxAge along with any
// tombstones in front of it. It returns the number of live entries removed.
func (c *Cache) Sweep(maxAge time.Duration) int {
	now := c.now()
	n := 0
	for e := c.heap.peek(); e != nil; e = c.heap.peek() {
		if e.tombstone() {
			heap.Pop(&c.heap)
			continue
		}
		if !e.ts.Add(maxAge).Before(now) {
			break
		}
		heap.Pop(&c.heap)
		c.dequeue(e)
		c.archive(e.msg, api.ArchiveExpired)
		n++
	}
	if n > 0 {
		c.log.Debug().Int("expired", n).Dur("max_age", maxAge).Msg("sweep")
		c.removed(ReasonExpired, n)
		c.report()
	}
	return n
}

// SweepExpired runs Sweep with the configured lifetime.
func (c *Cache) SweepExpired() int {
	return c.Sweep(c.lifetime)
}

// Empty reports whether nothing is cached.
func (c *Cache) Empty() bool {
	return c.size == 0 && len(c.queues) == 0
}

// Len returns the number of cached messages.
func (c *Cache) Len() int { return c.size }

// Capacity returns the maximum number of cached messages.
func (c *Cache) Capacity() int { return c.capacity }

// Lifetime returns the TTL applied by SweepExpired.
func (c *Cache) Lifetime() time.Duration { return c.lifetime }

// evictOldest removes the globally oldest live entry. It reports false when
// nothing is left to evict.
func (c *Cache) evictOldest() bool {
	for {
		e := c.heap.peek()
		if e == nil {
			return false
		}
		heap.Pop(&c.heap)
		if e.tombstone() {
			continue
		}
		c.dequeue(e)
		c.archive(e.msg, api.ArchiveEvicted)
		return true
	}
}

// dequeue takes a live entry out of its recipient queue and the size count.
func (c *Cache) dequeue(e *entry) {
	to := e.msg.To
	q, ok := c.queues[to]
	if !ok {
		return
	}
	if q.Peek().(*entry) == e {
		q.Remove()
	} else {
		// out-of-order clock: rebuild without e
		nq := queue.New()
		for i := 0; i < q.Length(); i++ {
			if x := q.Get(i).(*entry); x != e {
				nq.Add(x)
			}
		}
		q = nq
		c.queues[to] = q
	}
	c.size--
	if q.Length() == 0 {
		delete(c.queues, to)
	}
}

// bury tombstones e and moves it to the top of the heap.
func (c *Cache) bury(e *entry) {
	e.dead = true
	heap.Fix(&c.heap, e.index)
}

func (c *Cache) archive(msg api.Message, reason api.ArchiveReason) {
	if c.archiver != nil {
		c.archiver.Archive(msg, reason)
	}
}

func (c *Cache) removed(reason string, n int) {
	if c.observer != nil && n > 0 {
		c.observer.CacheRemoved(reason, n)
	}
}

func (c *Cache) report() {
	if c.observer != nil {
		c.observer.CacheSize(c.size)
	}
}
