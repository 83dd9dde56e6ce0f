// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness reactor driving the relay event loop:
// edge-triggered epoll on Linux, keyed by connection token, plus an eventfd
// waker for shutdown. Other platforms get a stub that reports the lack of support.
package reactor
