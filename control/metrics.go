// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus instruments for the relay. Metrics satisfies the recorder
// interfaces of the server, router, unread cache and archive worker.

package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "miki"

// Metrics holds every relay instrument.
type Metrics struct {
	connectionsActive   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   *prometheus.CounterVec
	acceptErrors        prometheus.Counter

	messagesReceived  prometheus.Counter
	messagesDelivered prometheus.Counter
	messagesCached    prometheus.Counter
	messagesFlushed   prometheus.Counter
	protocolErrors    prometheus.Counter
	sendErrors        prometheus.Counter

	cacheSize     prometheus.Gauge
	cacheRemovals *prometheus.CounterVec

	archiveWritten prometheus.Counter
	archiveDropped prometheus.Counter
	archiveFailed  prometheus.Counter

	loopIteration prometheus.Histogram
}

// NewMetrics registers the instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_active",
			Help: "Currently registered client connections",
		}),
		connectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_accepted_total",
			Help: "Accepted client connections",
		}),
		connectionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_closed_total",
			Help: "Closed client connections by reason",
		}, []string{"reason"}),
		acceptErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "accept_errors_total",
			Help: "Failed accept calls that did not stop the loop",
		}),
		messagesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_received_total",
			Help: "Decoded inbound messages",
		}),
		messagesDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_delivered_total",
			Help: "Messages written directly to a connected recipient",
		}),
		messagesCached: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_cached_total",
			Help: "Messages stored for an offline recipient",
		}),
		messagesFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_flushed_total",
			Help: "Cached messages delivered after the recipient connected",
		}),
		protocolErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "protocol_errors_total",
			Help: "Malformed inbound messages dropped",
		}),
		sendErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "send_errors_total",
			Help: "Failed socket writes",
		}),
		cacheSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "unread", Name: "size",
			Help: "Messages currently held in the unread cache",
		}),
		cacheRemovals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "unread", Name: "removals_total",
			Help: "Messages removed from the unread cache by reason",
		}, []string{"reason"}),
		archiveWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "archive", Name: "records_written_total",
			Help: "Records persisted by the archive sink",
		}),
		archiveDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "archive", Name: "records_dropped_total",
			Help: "Records dropped because the archive queue was full or closed",
		}),
		archiveFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "archive", Name: "batch_failures_total",
			Help: "Archive batches the sink failed to write",
		}),
		loopIteration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "loop_iteration_seconds",
			Help:    "Time spent handling one batch of readiness events",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
	}
}

// ConnectionAccepted counts one accepted connection.
func (m *Metrics) ConnectionAccepted() { m.connectionsAccepted.Inc() }

// ConnectionClosed counts one teardown. Reasons: "peer", "read_error",
// "write_error", "register_error", "shutdown".
func (m *Metrics) ConnectionClosed(reason string) {
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) AcceptFailed()             { m.acceptErrors.Inc() }
func (m *Metrics) Connections(n int)         { m.connectionsActive.Set(float64(n)) }
func (m *Metrics) MessageReceived()          { m.messagesReceived.Inc() }
func (m *Metrics) ProtocolError()            { m.protocolErrors.Inc() }
func (m *Metrics) Iteration(d time.Duration) { m.loopIteration.Observe(d.Seconds()) }

// Router outcomes.

func (m *Metrics) MessageDelivered()     { m.messagesDelivered.Inc() }
func (m *Metrics) MessageCached()        { m.messagesCached.Inc() }
func (m *Metrics) MessagesFlushed(n int) { m.messagesFlushed.Add(float64(n)) }
func (m *Metrics) SendFailed()           { m.sendErrors.Inc() }

// Unread cache observer.

func (m *Metrics) CacheSize(n int) { m.cacheSize.Set(float64(n)) }
func (m *Metrics) CacheRemoved(reason string, n int) {
	m.cacheRemovals.WithLabelValues(reason).Add(float64(n))
}

// Archive worker outcomes.

func (m *Metrics) ArchiveWritten(n int) { m.archiveWritten.Add(float64(n)) }
func (m *Metrics) ArchiveDropped()      { m.archiveDropped.Inc() }
func (m *Metrics) ArchiveFailed()       { m.archiveFailed.Inc() }
