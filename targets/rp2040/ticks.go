//go:build rp2040

package main

import (
	"device/rp"
	"runtime/interrupt"

	"sorterfw/core"
)

// Alarm 0 belongs to the TinyGo runtime sleep timer
const tickAlarm = 1

// startTickAlarm runs the scheduler from TIMER alarm 1 so step, motion and
// servo ticks keep their rate however long the main loop spends on commands.
func startTickAlarm() {
	intr := interrupt.New(rp.IRQ_TIMER_IRQ_1, tickAlarmHandler)
	intr.SetPriority(0x00)
	rp.TIMER.INTE.SetBits(1 << tickAlarm)
	armTickAlarm()
	intr.Enable()
}

func tickAlarmHandler(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(1 << tickAlarm)
	armTickAlarm()
}

// armTickAlarm runs every due timer and arms the alarm for the next one.
// The compare only fires on an exact match, so a wake time that has already
// passed is handled here instead of being left to the alarm.
func armTickAlarm() {
	for {
		UpdateSystemTime()
		core.ProcessTimers()

		next, ok := core.NextWakeTime()
		if !ok {
			return
		}
		rp.TIMER.ALARM1.Set(next)
		if int32(next-GetHardwareTime()) > 0 {
			return
		}
	}
}
