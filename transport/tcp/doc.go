// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements the raw non-blocking TCP listener and sockets that the
// relay registers with its reactor. Descriptors bypass Go's netpoller so a single
// goroutine can multiplex them with edge-triggered readiness.
package tcp
