//go:build rp2040

package main

import (
	"machine"

	"tinygo.org/x/drivers/pca9685"

	"sorterfw/config"
)

// servoPeriodNs is the standard 50 Hz hobby servo frame
const servoPeriodNs = 20_000_000

// PCA9685Sink drives servo outputs on a PCA9685 I2C PWM expander. Duty
// values are the expander's 12-bit on-counts at 50 Hz.
type PCA9685Sink struct {
	dev pca9685.Dev
}

// NewPCA9685Sink configures I2C0 on the board's pins and the expander at the
// configured address
func NewPCA9685Sink(cfg *config.BoardConfig) (*PCA9685Sink, error) {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.Pin(cfg.I2CSDAPin),
		SCL:       machine.Pin(cfg.I2CSCLPin),
	})
	if err != nil {
		return nil, err
	}

	dev := pca9685.New(bus, cfg.ServoI2CAddress)
	if err := dev.Configure(pca9685.PWMConfig{Period: servoPeriodNs}); err != nil {
		return nil, err
	}
	return &PCA9685Sink{dev: dev}, nil
}

// SetDuty implements core.DutySink
func (s *PCA9685Sink) SetDuty(channel uint8, duty uint16) error {
	s.dev.Set(channel, uint32(duty))
	return nil
}
