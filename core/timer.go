package core

import "sync/atomic"

// TimerFreq is the RP2040 timer rate: one tick per microsecond
const TimerFreq = 1000000

var systemTicks uint32

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

// SetTime sets the current system time (target clock loop and tests)
func SetTime(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}

// TimerPeriod returns the tick interval for a rate in Hz
func TimerPeriod(rateHz uint32) uint32 {
	return TimerFreq / rateHz
}

// ProcessTimers runs every timer that is due at the current time
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
