//go:build !linux
// +build !linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"errors"

	"github.com/momentics/miki/api"
)

// Listener is unavailable on this platform.
type Listener struct{}

// Listen returns an error for unsupported platforms.
func Listen(addr string) (*Listener, error) {
	return nil, errors.New("tcp: raw listener is only supported on linux")
}

func (l *Listener) Fd() uintptr                { return 0 }
func (l *Listener) Addr() string               { return "" }
func (l *Listener) Accept() (api.Socket, error) { return nil, api.ErrClosed }
func (l *Listener) Close() error               { return nil }
