// File: internal/archive/worker.go
// Package archive
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Asynchronous archival of messages that left the unread cache
// undelivered. The event loop only ever does a non-blocking channel send.

package archive

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/miki/api"
)

// Record is the archived form of one message.
type Record struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	From       uint64    `json:"from"`
	To         uint64    `json:"to"`
	Content    string    `json:"content"`
	Reason     string    `json:"reason"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Sink persists a batch of records.
type Sink interface {
	Write(ctx context.Context, batch []Record) error
}

// Recorder counts archive outcomes. control.Metrics implements it.
type Recorder interface {
	ArchiveWritten(n int)
	ArchiveDropped()
	ArchiveFailed()
}

type nopRecorder struct{}

func (nopRecorder) ArchiveWritten(int) {}
func (nopRecorder) ArchiveDropped()    {}
func (nopRecorder) ArchiveFailed()     {}

const (
	DefaultQueueSize     = 1024
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second

	writeTimeout = 30 * time.Second
)

// Worker batches records and hands them to a Sink on its own goroutine.
type Worker struct {
	sink          Sink
	queueSize     int
	batchSize     int
	flushInterval time.Duration
	rec           Recorder
	log           zerolog.Logger
	now           func() time.Time

	mu     sync.RWMutex
	closed bool
	in     chan Record
	done   chan struct{}
}

// Option customizes a Worker.
type Option func(*Worker)

func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(w *Worker) { w.rec = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) { w.log = l.With().Str("component", "archive").Logger() }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// NewWorker starts a worker writing to sink.
func NewWorker(sink Sink, opts ...Option) *Worker {
	w := &Worker{
		sink:          sink,
		queueSize:     DefaultQueueSize,
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		rec:           nopRecorder{},
		log:           zerolog.Nop(),
		now:           time.Now,
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	w.in = make(chan Record, w.queueSize)
	go w.run()
	return w
}

// Archive implements api.Archiver. It never blocks: when the queue is full
// or the worker is closed the record is dropped and counted.
func (w *Worker) Archive(msg api.Message, reason api.ArchiveReason) {
	r := Record{
		ID:         msg.ID.String(),
		Timestamp:  msg.Timestamp,
		From:       uint64(msg.From),
		To:         uint64(msg.To),
		Content:    msg.Content,
		Reason:     reason.String(),
		ArchivedAt: w.now(),
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.rec.ArchiveDropped()
		return
	}
	select {
	case w.in <- r:
	default:
		w.rec.ArchiveDropped()
		w.log.Warn().Str("id", r.ID).Msg("archive queue full, record dropped")
	}
}

// Close stops accepting records and waits until queued ones are written
// or ctx is done.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.in)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, w.batchSize)
	for {
		select {
		case r, ok := <-w.in:
			if !ok {
				w.flush(batch)
				return
			}
			batch = append(batch, r)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = make([]Record, 0, w.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = make([]Record, 0, w.batchSize)
			}
		}
	}
}

func (w *Worker) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.sink.Write(ctx, batch); err != nil {
		w.rec.ArchiveFailed()
		w.log.Error().Err(err).Int("records", len(batch)).Msg("archive write failed")
		return
	}
	w.rec.ArchiveWritten(len(batch))
}
