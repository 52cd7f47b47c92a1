//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"sorterfw/core"
)

// RP2040 timer peripheral, a free-running 64-bit microsecond counter
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x28
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// GetHardwareTime returns the low 32 bits of the microsecond counter, which
// runs at core.TimerFreq
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// UpdateSystemTime publishes the hardware time to the scheduler
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
