// File: internal/router/router.go
// Package router
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Router decides between immediate delivery and the unread cache, and
// flushes cached mail once a recipient connects.

package router

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/miki/api"
	"github.com/momentics/miki/internal/registry"
	"github.com/momentics/miki/internal/unread"
)

const tracerName = "github.com/momentics/miki/internal/router"

// Recorder counts routing outcomes. control.Metrics implements it.
type Recorder interface {
	MessageDelivered()
	MessageCached()
	MessagesFlushed(n int)
	SendFailed()
}

type nopRecorder struct{}

func (nopRecorder) MessageDelivered()   {}
func (nopRecorder) MessageCached()      {}
func (nopRecorder) MessagesFlushed(int) {}
func (nopRecorder) SendFailed()         {}

// Router routes decoded messages. It shares the registry and cache with the
// event loop and must only be used from that goroutine.
type Router struct {
	reg    *registry.Registry
	cache  *unread.Cache
	tracer trace.Tracer
	rec    Recorder
	log    zerolog.Logger
}

// Option customizes a Router.
type Option func(*Router)

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Router) { r.rec = rec }
}

// WithLogger sets the router logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) { r.log = l.With().Str("component", "router").Logger() }
}

// New creates a router over reg and cache.
func New(reg *registry.Registry, cache *unread.Cache, opts ...Option) *Router {
	r := &Router{
		reg:    reg,
		cache:  cache,
		tracer: otel.Tracer(tracerName),
		rec:    nopRecorder{},
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// DirectSend delivers msg to a connected recipient or caches it.
//
// It returns nil when the content was written, api.ErrUserOffline when the
// message was cached, and *api.SendError when the recipient's socket failed. The caller owns tearing that socket down.
func (r *Router) DirectSend(ctx context.Context, msg api.Message) error {
	_, span := r.tracer.Start(ctx, "router.direct_send",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("miki.message_id", msg.ID.String()),
			attribute.String("miki.from", msg.From.String()),
			attribute.String("miki.to", msg.To.String()),
			attribute.Int("miki.content_len", len(msg.Content)),
		),
	)
	defer span.End()

	conn, ok := r.reg.Get(msg.To)
	if !ok {
		r.cache.Insert(msg)
		r.rec.MessageCached()
		span.SetAttributes(attribute.String("miki.outcome", "user_offline"))
		span.SetStatus(codes.Ok, "")
		r.log.Debug().Stringer("from", msg.From).Stringer("to", msg.To).Msg("user offline, cached")
		return api.ErrUserOffline
	}

	if err := write(conn, msg.Content); err != nil {
		r.rec.SendFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	r.rec.MessageDelivered()
	span.SetAttributes(attribute.String("miki.outcome", "sent"))
	span.SetStatus(codes.Ok, "")
	r.log.Debug().Stringer("from", msg.From).Stringer("to", msg.To).Msg("message sent")
	return nil
}

// FlushUnread writes conn's cached messages in insertion order and then
// removes them from the cache. It returns one result per message, or nil
// when nothing was cached.
func (r *Router) FlushUnread(ctx context.Context, conn *registry.Connection) []error {
	msgs, ok := r.cache.Extract(conn.Token)
	if !ok {
		return nil
	}
	_, span := r.tracer.Start(ctx, "router.flush_unread",
		trace.WithAttributes(
			attribute.String("miki.to", conn.Token.String()),
			attribute.Int("miki.count", len(msgs)),
		),
	)
	defer span.End()

	results := r.ServerSend(conn, msgs)
	// tokens are never reused, so failed entries have no later recipient
	r.cache.Remove(conn.Token)

	failed := 0
	for _, err := range results {
		if err != nil {
			failed++
		}
	}
	r.rec.MessagesFlushed(len(msgs) - failed)
	span.SetAttributes(attribute.Int("miki.failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, "partial flush")
	}
	r.log.Info().Stringer("token", conn.Token).Int("flushed", len(msgs)-failed).Int("failed", failed).Msg("unread flushed")
	return results
}

// ServerSend writes every message to conn, never stopping at the first
// failure. results[i] belongs to msgs[i].
func (r *Router) ServerSend(conn *registry.Connection, msgs []api.Message) []error {
	results := make([]error, len(msgs))
	for i, m := range msgs {
		if err := write(conn, m.Content); err != nil {
			r.rec.SendFailed()
			results[i] = err
		}
	}
	return results
}

func write(conn *registry.Connection, content string) error {
	if _, err := conn.Socket.Write([]byte(content)); err != nil {
		return &api.SendError{Token: conn.Token, Err: err}
	}
	return nil
}
