//go:build rp2040

package main

import (
	"machine"
	"time"
)

var (
	consecutiveWriteFailures uint32
	usbWasDisconnected       bool
)

// InitUSB configures the USB CDC serial port (machine.Serial on the RP2040)
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// usbReaderLoop moves received bytes into the input FIFO
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		// Leave bytes in the USB buffer while the FIFO is full
		for machine.Serial.Buffered() > 0 && inputBuffer.Free() > 0 {
			c, err := machine.Serial.ReadByte()
			if err != nil {
				msgerrors++
				break
			}

			// First traffic after a disconnect starts from a clean receiver
			if usbWasDisconnected {
				usbWasDisconnected = false
				consecutiveWriteFailures = 0
				transport.Reset()
			}

			if inputBuffer.Write([]byte{c}) == 0 {
				msgerrors++
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB sends one encoded frame. Repeated failures mark the host as gone.
func writeUSB(frame []byte) {
	written := 0
	for written < len(frame) {
		n, err := machine.Serial.Write(frame[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
}
