//go:build rp2040

package main

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"sorterfw/config"
	"sorterfw/core"
)

var (
	errNoStateMachine = errors.New("no free PIO state machine")
	errPIOInvert      = errors.New("PIO backend does not invert step or dir")
)

// Step program. Each 32-bit word queues a burst:
//
//	bits 0-15   pulse count - 1
//	bits 16-23  extra low cycles between pulses
//	bit 24      direction level
//
// The step line is high for 8 cycles and low for at least 3, at 200 ns per
// cycle (clock divider 25), well above core.MinStepPulseNs.
func buildStepperProgram(origin uint8) []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),                   // pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),            // out x, 16
		asm.Out(rp2pio.OutDestY, 8).Encode(),             // out y, 8
		asm.Out(rp2pio.OutDestPins, 1).Encode(),          // out pins, 1
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // step: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // set pins, 0
		asm.Jmp(origin+6, rp2pio.JmpYNZeroDec).Encode(),  // low: jmp y--, low
		asm.Jmp(origin+4, rp2pio.JmpXNZeroDec).Encode(),  // jmp x--, step
		// .wrap
	}
}

const (
	stepperPIOOrigin = 0
	stepperClkDiv    = 25
	pioBlocks        = 2
	smPerBlock       = 4
)

var (
	// The program is loaded once per PIO block and shared by its state machines
	pioProgramLoaded [pioBlocks]bool
	pioAllocations   [pioBlocks][smPerBlock]bool
)

// allocatePIO hands out state machines in order, PIO0 first
func allocatePIO() (uint8, uint8, bool) {
	for p := uint8(0); p < pioBlocks; p++ {
		for sm := uint8(0); sm < smPerBlock; sm++ {
			if !pioAllocations[p][sm] {
				pioAllocations[p][sm] = true
				return p, sm, true
			}
		}
	}
	return 0, 0, false
}

// newPIOBackend is the core.BackendFactory for config.BackendPIO
func newPIOBackend(channel uint8, sc config.StepperConfig) (core.StepperBackend, error) {
	pioNum, smNum, ok := allocatePIO()
	if !ok {
		return nil, errNoStateMachine
	}
	return NewPIOStepperBackend(pioNum, smNum), nil
}

// PIOStepperBackend queues step pulses to a PIO state machine. Direction
// travels in the same FIFO word as the pulse, so ordering is preserved.
type PIOStepperBackend struct {
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	pioNum  uint8
	stepPin machine.Pin
	dirPin  machine.Pin
	reverse bool
	ready   bool
}

// NewPIOStepperBackend creates a backend on state machine smNum of PIO pioNum
func NewPIOStepperBackend(pioNum, smNum uint8) *PIOStepperBackend {
	pioHW := rp2pio.PIO0
	if pioNum == 1 {
		pioHW = rp2pio.PIO1
	}
	return &PIOStepperBackend{
		pio:    pioHW,
		sm:     pioHW.StateMachine(smNum),
		pioNum: pioNum,
	}
}

// Init loads the program and starts the state machine. Calling it again
// keeps the running state machine.
func (b *PIOStepperBackend) Init(stepPin, dirPin core.GPIOPin, invertStep, invertDir bool) error {
	if b.ready {
		return nil
	}
	if invertStep || invertDir {
		return errPIOInvert
	}
	b.stepPin = machine.Pin(stepPin)
	b.dirPin = machine.Pin(dirPin)

	b.sm.TryClaim()

	program := buildStepperProgram(stepperPIOOrigin)
	if !pioProgramLoaded[b.pioNum] {
		if _, err := b.pio.AddProgram(program, stepperPIOOrigin); err != nil {
			return err
		}
		pioProgramLoaded[b.pioNum] = true
	}

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)
	// Shift right, explicit pull, 32-bit words
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(stepperPIOOrigin+uint8(len(program))-1, stepperPIOOrigin)
	cfg.SetClkDivIntFrac(stepperClkDiv, 0)

	// Pin directions only stick after Init
	b.sm.Init(stepperPIOOrigin, cfg)
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, false)
	b.sm.SetEnabled(true)

	b.ready = true
	return nil
}

// Step queues one pulse in the current direction
func (b *PIOStepperBackend) Step() {
	var word uint32 // one pulse, no extra delay
	if b.reverse {
		word |= 1 << 24
	}
	for b.sm.IsTxFIFOFull() {
	}
	b.sm.TxPut(word)
}

// SetDirection sets the direction of subsequent pulses
func (b *PIOStepperBackend) SetDirection(reverse bool) {
	b.reverse = reverse
}

// Stop needs no action: queued pulses drain within microseconds and the
// program leaves the step line low
func (b *PIOStepperBackend) Stop() {}

// GetName returns the backend name
func (b *PIOStepperBackend) GetName() string {
	return "pio"
}
