// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: connection tokens and the relayed message value.

package api

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Token is the opaque identifier assigned to a connection at accept time.
// Tokens are unique for the lifetime of the process and never reused.
type Token uint64

const (
	// ListenerToken is reserved for the listening socket.
	ListenerToken Token = 0
	// FirstToken is the first value handed out to an accepted connection.
	FirstToken Token = 1
	// WakeToken is reserved for the loop's wakeup descriptor.
	WakeToken Token = math.MaxUint64
)

// Reserved reports whether t can never identify a client connection.
func (t Token) Reserved() bool {
	return t == ListenerToken || t == WakeToken
}

func (t Token) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// Message is one relayed chat message. It is immutable once built by NewMessage.
type Message struct {
	ID        uuid.UUID
	Timestamp time.Time
	From      Token
	To        Token
	Content   string
}

// NewMessage builds a message stamped with at.
func NewMessage(from, to Token, content string, at time.Time) Message {
	return Message{
		ID:        uuid.New(),
		Timestamp: at,
		From:      from,
		To:        to,
		Content:   content,
	}
}

// ArchiveReason tells an Archiver why a message left the unread cache undelivered.
type ArchiveReason int

const (
	ArchiveEvicted ArchiveReason = iota + 1
	ArchiveExpired
)

func (r ArchiveReason) String() string {
	switch r {
	case ArchiveEvicted:
		return "evicted"
	case ArchiveExpired:
		return "expired"
	default:
		return "unknown"
	}
}
