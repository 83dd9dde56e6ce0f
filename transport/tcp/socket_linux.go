//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp - Linux non-blocking stream socket.

package tcp

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/miki/api"
)

// Socket is an accepted non-blocking TCP connection.
type Socket struct {
	fd     int
	remote string
}

// Fd returns the socket descriptor.
func (s *Socket) Fd() uintptr { return uintptr(s.fd) }

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() string { return s.remote }

// Read returns (0, nil) on orderly shutdown by the peer and api.ErrWouldBlock
// when no more data is queued.
func (s *Socket) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, p)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, api.ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// Write writes all of p unless the kernel buffer fills up, in which case it
// returns the bytes written so far and api.ErrWouldBlock.
func (s *Socket) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(s.fd, p[written:])
		switch err {
		case nil:
			written += n
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return written, api.ErrWouldBlock
		default:
			return written, err
		}
	}
	return written, nil
}

// Close closes the descriptor, which also drops it from any epoll set.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}
