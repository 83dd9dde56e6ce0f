package control_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/miki/control"
)

func TestMetricsRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := control.NewMetrics(reg)

	m.ConnectionAccepted()
	m.ConnectionClosed("peer")
	m.Connections(3)
	m.MessageDelivered()
	m.MessagesFlushed(4)
	m.CacheSize(12)
	m.CacheRemoved("expired", 2)
	m.ArchiveWritten(5)
	m.Iteration(time.Millisecond)

	expected := `
# HELP miki_messages_flushed_total Cached messages delivered after the recipient connected
# TYPE miki_messages_flushed_total counter
miki_messages_flushed_total 4
# HELP miki_unread_size Messages currently held in the unread cache
# TYPE miki_unread_size gauge
miki_unread_size 12
# HELP miki_connections_active Currently registered client connections
# TYPE miki_connections_active gauge
miki_connections_active 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"miki_messages_flushed_total", "miki_unread_size", "miki_connections_active"))

	count, err := testutil.GatherAndCount(reg, "miki_unread_removals_total", "miki_connections_closed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestOpsRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := control.NewMetrics(reg)
	m.ConnectionAccepted()

	probes := control.NewDebugProbes()
	probes.RegisterProbe("relay.connections", func() any { return 2 })
	var ready atomic.Bool
	srv := httptest.NewServer(control.NewOpsRouter(reg, probes, ready.Load))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, _ := get("/healthz")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	ready.Store(true)
	code, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body := get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "miki_connections_accepted_total 1")

	code, body = get("/debug/state")
	assert.Equal(t, http.StatusOK, code)
	var state map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &state))
	assert.EqualValues(t, 2, state["relay.connections"])
}

func TestOpsServerStartAndShutdown(t *testing.T) {
	srv := control.NewOpsServer("127.0.0.1:0", control.NewOpsRouter(prometheus.NewRegistry(), control.NewDebugProbes(), nil), zerolog.Nop())
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	dp.RegisterProbe("a", func() any { return "x" })

	assert.Contains(t, dp.Names(), "platform.cpus")
	state := dp.DumpState()
	assert.Equal(t, "x", state["a"])
	assert.Positive(t, state["platform.goroutines"])
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := control.NewLogger(control.LogConfig{Format: "json"}, &buf)
	logger.Info().Str("k", "v").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "miki", line["service"])
	assert.Equal(t, "v", line["k"])
}

func TestApplyLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)
	require.NoError(t, control.ApplyLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.Error(t, control.ApplyLevel("loud"))
}

func TestReloaderAppliesHooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miki.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	r := control.NewReloader(path, zerolog.Nop())
	var got string
	r.OnReload(func(c *control.Config) { got = c.Log.Level })
	require.NoError(t, r.Reload())
	assert.Equal(t, "debug", got)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600))
	assert.Error(t, r.Reload())
	assert.Equal(t, "debug", got)
}

func TestReloaderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miki.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600))

	r := control.NewReloader(path, zerolog.Nop())
	done := make(chan string, 1)
	r.OnReload(func(c *control.Config) { done <- c.Log.Level })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	go r.Watch(ctx, sig)
	sig <- syscall.SIGHUP

	select {
	case lvl := <-done:
		assert.Equal(t, "error", lvl)
	case <-time.After(time.Second):
		t.Fatal("reload hook not called")
	}
}
