//go:build rp2040

package main

import (
	"errors"
	"machine"

	"sorterfw/config"
	"sorterfw/core"
)

var errPinRange = errors.New("gpio out of range")

// RPGPIODriver implements core.GPIODriver on the RP2040 bank 0 pins.
// Input pins are configured once at init; ReadPin works on any pin so home
// switches can use any GPIO.
type RPGPIODriver struct {
	configured [config.MaxGPIO + 1]bool
}

// NewRPGPIODriver creates the GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{}
}

func (d *RPGPIODriver) pin(pin core.GPIOPin) (machine.Pin, error) {
	if pin > config.MaxGPIO {
		return machine.NoPin, errPinRange
	}
	return machine.Pin(pin), nil
}

// ConfigureOutput configures a pin as a push-pull output driven low
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	d.configured[pin] = true
	return nil
}

// ConfigureInputPullUp configures a pin as an input with the pull-up enabled
func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	d.configured[pin] = true
	return nil
}

// SetPin drives an output, configuring it first if needed
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	if !d.configured[pin] {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
	}
	p.Set(value)
	return nil
}

// ReadPin samples a pin
func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	if pin > config.MaxGPIO {
		return false
	}
	return machine.Pin(pin).Get()
}
