// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral helpers shared by reactor backends.

package reactor

import "github.com/momentics/miki/api"

// Readable reports whether ev signals data (or EOF) to read.
func Readable(ev api.Event) bool {
	return ev.Type&(api.EventRead|api.EventHangup|api.EventError) != 0
}
