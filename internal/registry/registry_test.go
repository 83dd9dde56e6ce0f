package registry_test

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/miki/api"
	"github.com/momentics/miki/fake"
	"github.com/momentics/miki/internal/registry"
)

func acceptN(t *testing.T, r *registry.Registry, n int) []*registry.Connection {
	t.Helper()
	l := fake.NewListener(3)
	for i := 0; i < n; i++ {
		l.Enqueue(fake.NewSocket(uintptr(10 + i)))
	}
	out := make([]*registry.Connection, 0, n)
	for i := 0; i < n; i++ {
		c, err := r.Accept(l)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestAcceptAssignsIncreasingTokens(t *testing.T) {
	r := registry.New()
	conns := acceptN(t, r, 5)

	for i, c := range conns {
		assert.Equal(t, api.Token(i+1), c.Token)
		assert.Equal(t, api.EventRead, c.Interest)
	}
	assert.Equal(t, 5, r.Len())
}

func TestTokensNeverReused(t *testing.T) {
	r := registry.New()
	first := acceptN(t, r, 2)
	require.True(t, r.Remove(first[1].Token))

	next := acceptN(t, r, 1)
	assert.Equal(t, api.Token(3), next[0].Token)
}

func TestAcceptWouldBlock(t *testing.T) {
	r := registry.New()
	_, err := r.Accept(fake.NewListener(3))
	assert.ErrorIs(t, err, api.ErrWouldBlock)
	assert.Equal(t, 0, r.Len())
}

func TestAcceptFailureIsConnectionError(t *testing.T) {
	r := registry.New()
	l := fake.NewListener(3)
	l.FailNext(syscall.EMFILE)

	_, err := r.Accept(l)
	var ce *api.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, api.SeverityFatal, api.Classify(err))

	l.FailNext(syscall.ECONNRESET)
	_, err = r.Accept(l)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, api.SeverityIgnorable, api.Classify(err))
}

func TestRemoveClosesAndPrunesOrder(t *testing.T) {
	r := registry.New()
	conns := acceptN(t, r, 3)

	require.True(t, r.Remove(conns[2].Token))
	assert.False(t, r.Remove(conns[2].Token))
	assert.True(t, conns[2].Socket.(*fake.Socket).Closed())

	recent, err := r.MostRecent()
	require.NoError(t, err)
	assert.Equal(t, conns[1].Token, recent.Token)
	assert.Equal(t, []api.Token{1, 2}, r.Tokens())
}

func TestMostRecentEmpty(t *testing.T) {
	r := registry.New()
	_, err := r.MostRecent()
	assert.ErrorIs(t, err, api.ErrNoConnections)

	conns := acceptN(t, r, 1)
	r.Remove(conns[0].Token)
	_, err = r.MostRecent()
	assert.ErrorIs(t, err, api.ErrNoConnections)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := registry.New()
	conns := acceptN(t, r, 1)

	r.Register(conns[0])
	r.Register(conns[0])
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []api.Token{1}, r.Tokens())

	got, ok := r.Get(conns[0].Token)
	require.True(t, ok)
	assert.Same(t, conns[0], got)
}

func TestReadFrom(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := registry.New(registry.WithClock(func() time.Time { return at }))
	conns := acceptN(t, r, 1)
	sock := conns[0].Socket.(*fake.Socket)
	buf := make([]byte, 1024)

	_, err := r.ReadFrom(conns[0].Token, buf)
	assert.ErrorIs(t, err, api.ErrWouldBlock)

	sock.Feed("2~hello\r\n")
	msg, err := r.ReadFrom(conns[0].Token, buf)
	require.NoError(t, err)
	assert.Equal(t, api.Token(1), msg.From)
	assert.Equal(t, api.Token(2), msg.To)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, at, msg.Timestamp)

	sock.Feed("garbage")
	_, err = r.ReadFrom(conns[0].Token, buf)
	var pe *api.ProtocolError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, r.Len())
}

func TestReadFromZeroBytesRemoves(t *testing.T) {
	r := registry.New()
	conns := acceptN(t, r, 1)
	sock := conns[0].Socket.(*fake.Socket)
	sock.Hangup()

	_, err := r.ReadFrom(conns[0].Token, make([]byte, 16))
	assert.ErrorIs(t, err, api.ErrReceivedZeroBytes)
	assert.Equal(t, 0, r.Len())
	assert.True(t, sock.Closed())
}

func TestReadFromSocketError(t *testing.T) {
	r := registry.New()
	conns := acceptN(t, r, 1)
	boom := errors.New("boom")
	conns[0].Socket.(*fake.Socket).SetReadError(boom)

	_, err := r.ReadFrom(conns[0].Token, make([]byte, 16))
	var re *api.ReceiveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, conns[0].Token, re.Token)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, api.SeverityConnection, api.Classify(err))
}

func TestReadFromUnknown(t *testing.T) {
	r := registry.New()
	_, err := r.ReadFrom(42, make([]byte, 16))
	assert.ErrorIs(t, err, api.ErrUnknownConnection)
}

func TestCloseAll(t *testing.T) {
	r := registry.New()
	conns := acceptN(t, r, 3)
	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	for _, c := range conns {
		assert.True(t, c.Socket.(*fake.Socket).Closed())
	}
}
