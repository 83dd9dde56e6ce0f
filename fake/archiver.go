// Package fake
// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync"

	"github.com/momentics/miki/api"
)

// ArchiveRecord is one message handed to an Archiver.
type ArchiveRecord struct {
	Message api.Message
	Reason  api.ArchiveReason
}

// Archiver records every archived message.
type Archiver struct {
	mu      sync.Mutex
	records []ArchiveRecord
}

// Archive implements api.Archiver.
func (a *Archiver) Archive(msg api.Message, reason api.ArchiveReason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, ArchiveRecord{Message: msg, Reason: reason})
}

// Records returns a copy of the archived records.
func (a *Archiver) Records() []ArchiveRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ArchiveRecord, len(a.records))
	copy(out, a.records)
	return out
}
