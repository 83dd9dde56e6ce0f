//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"errors"

	"github.com/momentics/miki/api"
)

var errUnsupported = errors.New("reactor: this platform is not supported")

// New returns an error for unsupported platforms.
func New() (api.Reactor, error) {
	return nil, errUnsupported
}

// NewWaker returns an error for unsupported platforms.
func NewWaker() (api.Waker, error) {
	return nil, errUnsupported
}
