//go:build rp2040

package main

import (
	"machine"
	"runtime/interrupt"
	"strconv"
	"time"

	"sorterfw/config"
	"sorterfw/core"
	"sorterfw/protocol"
)

// boardProfile selects the built-in board, set with
// -ldflags "-X main.boardProfile=skr_pico"
var boardProfile = "feeder_mb"

var (
	inputBuffer *protocol.FifoBuffer
	transport   *protocol.Transport
	board       *core.Board
	dutySink    *core.DeferredDutySink
	logBuffer   core.LogBuffer

	msgerrors uint32
)

func main() {
	// Clear any watchdog state left over from a previous reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	UpdateSystemTime()

	core.SetDebugWriter(logBuffer.Println)
	core.SetDebugEnabled(true)

	cfg, ok := config.Profile(boardProfile)
	if !ok {
		fatal()
	}
	if err := cfg.Validate(); err != nil {
		fatal()
	}

	gpio := NewRPGPIODriver()
	var sink core.DutySink
	if len(cfg.Servos) > 0 {
		pca, err := NewPCA9685Sink(cfg)
		if err != nil {
			fatal()
		}
		// Servo ticks run in the alarm interrupt; I2C writes happen in the main loop
		dutySink = core.NewDeferredDutySink(pca)
		sink = dutySink
	}

	var err error
	board, err = core.NewBoard(cfg, gpio, backendFactory(cfg, gpio), sink)
	if err != nil {
		fatal()
	}
	board.Log = &logBuffer
	if err := board.Init(); err != nil {
		fatal()
	}
	if err := board.RegisterCommands(core.GetGlobalRegistry()); err != nil {
		fatal()
	}

	inputBuffer = protocol.NewFifoBuffer(512)
	transport = protocol.NewTransport(cfg.DeviceAddress, core.DispatchCommand, writeUSB)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
	})

	board.StartTicks()
	startTickAlarm()
	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					logRecovery()
					inputBuffer.Reset()
					transport.Reset()
				}
			}()

			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}

			if dutySink != nil {
				if err := dutySink.Flush(); err != nil {
					msgerrors++
				}
			}
		}()

		// Yield to the USB reader
		time.Sleep(10 * time.Microsecond)
	}
}

// logRecovery records the receiver state and recent timing events after a
// panic in the main loop; the host reads them with GET_LOG
func logRecovery() {
	state := interrupt.Disable()
	defer interrupt.Restore(state)

	stats := transport.Stats()
	core.DebugPrintln("[MAIN] recovered: errors=" + strconv.FormatUint(uint64(msgerrors), 10) +
		" crc=" + strconv.FormatUint(uint64(stats.CRCErrors), 10) +
		" framing=" + strconv.FormatUint(uint64(stats.FramingErrors), 10))
	core.DumpTimingRing()
}

// backendFactory returns the step backend constructor for the configured
// backend kind
func backendFactory(cfg *config.BoardConfig, gpio core.GPIODriver) core.BackendFactory {
	if cfg.StepperBackend == config.BackendPIO {
		return newPIOBackend
	}
	return func(channel uint8, sc config.StepperConfig) (core.StepperBackend, error) {
		return core.NewPinStepperBackend(gpio, pulseDelay), nil
	}
}

// fatal blinks the LED forever; the board configuration is unusable
func fatal() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
