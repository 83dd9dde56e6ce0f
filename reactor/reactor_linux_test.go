//go:build linux
// +build linux

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/miki/api"
)

func socketPair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestTokenSplitJoin(t *testing.T) {
	for _, tok := range []api.Token{0, 1, 1 << 31, 1<<32 + 5, api.WakeToken} {
		lo, hi := splitToken(tok)
		assert.Equal(t, tok, joinToken(lo, hi))
	}
}

func TestTimeoutMillis(t *testing.T) {
	assert.Equal(t, -1, timeoutMillis(-1))
	assert.Equal(t, 0, timeoutMillis(0))
	assert.Equal(t, 1, timeoutMillis(time.Microsecond))
	assert.Equal(t, 1500, timeoutMillis(1500*time.Millisecond))
}

func TestReactorReadiness(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	a, b := socketPair(t)
	const tok = api.Token(1<<32 + 7)
	require.NoError(t, r.Register(uintptr(a), tok, api.EventRead))

	events := make([]api.Event, 8)
	n, err := r.Wait(events, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing written yet")

	_, err = unix.Write(b, []byte("2~hi"))
	require.NoError(t, err)

	n, err = r.Wait(events, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, tok, events[0].Token)
	assert.True(t, Readable(events[0]))

	// edge-triggered: no new edge until more data arrives
	n, err = r.Wait(events, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, r.Unregister(uintptr(a)))
	_, err = unix.Write(b, []byte("more"))
	require.NoError(t, err)
	n, err = r.Wait(events, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReactorHangup(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	require.NoError(t, r.Register(uintptr(fds[0]), 5, api.EventRead))
	require.NoError(t, unix.Close(fds[1]))

	events := make([]api.Event, 4)
	n, err := r.Wait(events, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.NotZero(t, events[0].Type&api.EventHangup)
}

func TestWaker(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()
	w, err := NewWaker()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, r.Register(w.Fd(), api.WakeToken, api.EventRead))

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = w.Wake()
	}()
	events := make([]api.Event, 4)
	n, err := r.Wait(events, -1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, api.WakeToken, events[0].Token)
	require.NoError(t, w.Drain())
	require.NoError(t, w.Drain(), "draining an empty waker is a no-op")
}
