//go:build rp2040

package main

import "device/arm"

// pulseDelay holds a step line for at least core.MinStepPulseNs. Each NOP is
// 8 ns at 125 MHz and the GPIO write itself adds a few cycles.
func pulseDelay() {
	arm.Asm("nop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop")
	arm.Asm("nop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop")
}
