// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags.

package affinity

import (
	"errors"
	"runtime"
)

// ErrUnsupported is returned where thread affinity cannot be set.
var ErrUnsupported = errors.New("affinity: not supported on this platform")

// PinCurrentThread locks the calling goroutine to its OS thread and
// restricts that thread to cpuID. The returned release restores the
// previous mask and unlocks the thread; call it from the same goroutine.
func PinCurrentThread(cpuID int) (release func(), err error) {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return nil, errors.New("affinity: cpu out of range")
	}
	runtime.LockOSThread()
	restore, err := setAffinityPlatform(cpuID)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return func() {
		restore()
		runtime.UnlockOSThread()
	}, nil
}
