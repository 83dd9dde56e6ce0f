//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory.

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/miki/api"
)

// linuxReactor is an edge-triggered epoll reactor. The 64-bit token is carried
// in the epoll_data union split across the Fd and Pad words.
type linuxReactor struct {
	epfd int
	raw  []unix.EpollEvent
}

// New constructs a new platform-specific Reactor for Linux.
func New() (api.Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &linuxReactor{epfd: epfd}, nil
}

// Register adds fd to the interest set, edge-triggered.
func (r *linuxReactor) Register(fd uintptr, token api.Token, interest api.EventType) error {
	ev := unix.EpollEvent{Events: unix.EPOLLET | unix.EPOLLRDHUP}
	if interest&api.EventRead != 0 {
		ev.Events |= unix.EPOLLIN
	}
	if interest&api.EventWrite != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	ev.Fd, ev.Pad = splitToken(token)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Unregister removes fd from the interest set.
func (r *linuxReactor) Unregister(fd uintptr) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait blocks for readiness. timeout < 0 blocks indefinitely.
// An interrupted wait returns zero events and no error.
func (r *linuxReactor) Wait(events []api.Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, fmt.Errorf("epoll wait: %w", unix.EINVAL)
	}
	if cap(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	raw := r.raw[:len(events)]

	n, err := unix.EpollWait(r.epfd, raw, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		events[i] = api.Event{
			Token: joinToken(raw[i].Fd, raw[i].Pad),
			Type:  eventType(raw[i].Events),
		}
	}
	return n, nil
}

// Close closes the epoll instance.
func (r *linuxReactor) Close() error {
	return unix.Close(r.epfd)
}

func eventType(mask uint32) api.EventType {
	var t api.EventType
	if mask&unix.EPOLLIN != 0 {
		t |= api.EventRead
	}
	if mask&unix.EPOLLOUT != 0 {
		t |= api.EventWrite
	}
	if mask&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		t |= api.EventHangup
	}
	if mask&unix.EPOLLERR != 0 {
		t |= api.EventError
	}
	return t
}

func splitToken(t api.Token) (lo, hi int32) {
	return int32(uint32(t)), int32(uint32(t >> 32))
}

func joinToken(lo, hi int32) api.Token {
	return api.Token(uint64(uint32(hi))<<32 | uint64(uint32(lo)))
}

// timeoutMillis rounds partial milliseconds up so a short timeout never
// degenerates into a busy poll.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > 1<<31-1 {
		ms = 1<<31 - 1
	}
	return int(ms)
}
