// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, metrics, hot-reload and debug introspection for
// the relay, plus the operational HTTP endpoint.
//
// Everything here runs beside the event loop, never inside it. The only
// state shared with the loop is concurrency-safe: prometheus instruments
// and probes that read atomics.
package control
