// File: client/client.go
// Package client provides the line-mode relay client: it forwards input
// lines to the relay and copies everything the relay sends back.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/miki/api"
	"github.com/momentics/miki/protocol"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("client closed")

// Config holds client parameters.
type Config struct {
	Addr         string        // relay host:port
	DialTimeout  time.Duration // 0 = no timeout
	WriteTimeout time.Duration // per-write deadline, 0 = none
}

// DefaultConfig matches the relay's default bind address.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:2203",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Client is one relay connection. Send may be called concurrently with
// Receive; writes are serialized.
type Client struct {
	cfg    Config
	conn   net.Conn
	r      *bufio.Reader
	wmu    sync.Mutex
	token  atomic.Uint64
	closed atomic.Bool
}

// Dial connects to cfg.Addr.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}
	return New(conn, cfg), nil
}

// New wraps an established connection.
func New(conn net.Conn, cfg Config) *Client {
	return &Client{cfg: cfg, conn: conn, r: bufio.NewReader(conn)}
}

// ReadGreeting consumes the "token:<n>" line the relay sends on connect.
func (c *Client) ReadGreeting() (api.Token, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	t, err := protocol.ParseGreeting(line)
	if err != nil {
		return 0, err
	}
	c.token.Store(uint64(t))
	return t, nil
}

// Token returns the token learned from the greeting, or 0.
func (c *Client) Token() api.Token { return api.Token(c.token.Load()) }

// Send addresses content to a token.
func (c *Client) Send(to api.Token, content string) error {
	return c.write(protocol.Encode(to, content))
}

// SendLine forwards a raw "<to>~<content>" line unchanged.
func (c *Client) SendLine(line string) error {
	return c.write([]byte(line + "\n"))
}

func (c *Client) write(p []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(p)
	return err
}

// Forward sends every line of in until EOF or ctx is done.
func (c *Client) Forward(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := c.SendLine(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Read returns whatever the relay has sent so far, blocking for at least
// one byte.
func (c *Client) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// Receive copies relay output to out until the relay closes the connection.
func (c *Client) Receive(out io.Writer) error {
	_, err := io.Copy(out, c.r)
	if c.closed.Load() {
		return nil
	}
	return err
}

// Close is idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
