//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// On the host, "interrupts disabled" is modelled by a lock shared by command
// dispatch and timer dispatch, so tick handlers never interleave with a
// command handler. Calls must not nest.
var interruptLock sync.Mutex

func disableInterrupts() State {
	interruptLock.Lock()
	return 0
}

func restoreInterrupts(state State) {
	interruptLock.Unlock()
}
