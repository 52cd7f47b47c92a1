// Package config holds the board description: pins, counts, identity and
// default motion parameters. Boards are built in or loaded from JSON.
package config

import (
	"encoding/json"
	"errors"
	"strconv"
)

// MaxGPIO is the highest usable GPIO number on the RP2040
const MaxGPIO = 29

// NoPin marks an unused optional pin
const NoPin = -1

// Stepper output backends
const (
	BackendGPIO = "gpio"
	BackendPIO  = "pio"
)

// StepperConfig describes one step/dir channel
type StepperConfig struct {
	StepPin    uint8 `json:"step_pin"`
	DirPin     uint8 `json:"dir_pin"`
	InvertStep bool  `json:"invert_step,omitempty"`
	InvertDir  bool  `json:"invert_dir,omitempty"`
	// Per-driver active-low enable; NoPin when the board has one shared line
	EnablePin int `json:"enable_pin"`
	// Address on the driver UART bus
	DriverAddress uint8 `json:"driver_address"`
}

// UnmarshalJSON defaults a missing enable_pin to NoPin
func (s *StepperConfig) UnmarshalJSON(data []byte) error {
	type plain StepperConfig
	p := plain{EnablePin: NoPin}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = StepperConfig(p)
	return nil
}

// ServoConfig describes one servo output
type ServoConfig struct {
	Output  uint8  `json:"output"` // PCA9685 channel
	MinDuty uint16 `json:"min_duty,omitempty"`
	MaxDuty uint16 `json:"max_duty,omitempty"`
}

// MotionDefaults are applied to every stepper by board initialization
type MotionDefaults struct {
	Acceleration uint32 `json:"acceleration"`
	MinSpeed     uint32 `json:"min_speed"`
	MaxSpeed     uint32 `json:"max_speed"`
}

// BoardConfig is the full board description
type BoardConfig struct {
	DeviceName    string `json:"device_name"`
	DeviceAddress uint8  `json:"device_address"`

	Steppers        []StepperConfig `json:"steppers"`
	StepperBackend  string          `json:"stepper_backend"`
	StepperDefaults MotionDefaults  `json:"stepper_defaults"`
	// Shared active-low driver enable; NoPin if each stepper has its own
	EnablePin int `json:"enable_pin"`

	DigitalInputs  []uint8 `json:"digital_inputs"`
	DigitalOutputs []uint8 `json:"digital_outputs"`

	Servos          []ServoConfig `json:"servos"`
	ServoI2CAddress uint8         `json:"servo_i2c_address"`
	I2CSDAPin       uint8         `json:"i2c_sda_pin"`
	I2CSCLPin       uint8         `json:"i2c_scl_pin"`

	DriverUARTTxPin int    `json:"driver_uart_tx_pin"`
	DriverUARTRxPin int    `json:"driver_uart_rx_pin"`
	DriverUARTBaud  uint32 `json:"driver_uart_baud"`
}

// Limits of the device name and channel counts
const (
	MaxDeviceName = 15
	MaxChannels   = 16
)

var (
	ErrDeviceName  = errors.New("device name too long")
	ErrNoSteppers  = errors.New("no steppers configured")
	ErrBackend     = errors.New("unknown stepper backend")
	ErrTooMany     = errors.New("too many channels")
	ErrPinRange    = errors.New("pin out of range")
	ErrPinConflict = errors.New("pin used twice")
	ErrDutyLimits  = errors.New("servo min duty above max duty")
	ErrSpeedLimits = errors.New("stepper min speed above max speed")
)

// PinError wraps a pin validation error with the offending pin and its role
type PinError struct {
	Err  error
	Pin  int
	Role string
}

func (e *PinError) Error() string {
	return e.Err.Error() + ": " + e.Role + " gpio" + strconv.Itoa(e.Pin)
}

func (e *PinError) Unwrap() error {
	return e.Err
}

// LoadConfig parses a JSON board description and fills in defaults
func LoadConfig(jsonData []byte) (*BoardConfig, error) {
	config := BoardConfig{
		EnablePin:       NoPin,
		DriverUARTTxPin: NoPin,
		DriverUARTRxPin: NoPin,
	}
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *BoardConfig) {
	if config.DeviceName == "" {
		config.DeviceName = "SORTER IF"
	}
	if config.StepperBackend == "" {
		config.StepperBackend = BackendGPIO
	}

	d := &config.StepperDefaults
	if d.Acceleration == 0 {
		d.Acceleration = 20000
	}
	if d.MinSpeed == 0 {
		d.MinSpeed = 16
	}
	if d.MaxSpeed == 0 {
		d.MaxSpeed = 4000
	}

	for i := range config.Servos {
		s := &config.Servos[i]
		if s.MinDuty == 0 {
			s.MinDuty = 102
		}
		if s.MaxDuty == 0 {
			s.MaxDuty = 512
		}
	}
	if config.ServoI2CAddress == 0 {
		config.ServoI2CAddress = 0x40
	}
	if config.DriverUARTBaud == 0 {
		config.DriverUARTBaud = 400000
	}
}

// Validate checks counts, pin ranges and pin reuse
func (c *BoardConfig) Validate() error {
	if len(c.DeviceName) > MaxDeviceName {
		return ErrDeviceName
	}
	if len(c.Steppers) == 0 {
		return ErrNoSteppers
	}
	if c.StepperBackend != BackendGPIO && c.StepperBackend != BackendPIO {
		return ErrBackend
	}
	if len(c.Steppers) > MaxChannels || len(c.Servos) > MaxChannels ||
		len(c.DigitalInputs) > MaxChannels || len(c.DigitalOutputs) > MaxChannels {
		return ErrTooMany
	}
	if c.StepperDefaults.MinSpeed > c.StepperDefaults.MaxSpeed {
		return ErrSpeedLimits
	}

	used := make(map[int]string)
	claim := func(pin int, role string) error {
		if pin == NoPin {
			return nil
		}
		if pin < 0 || pin > MaxGPIO {
			return &PinError{Err: ErrPinRange, Pin: pin, Role: role}
		}
		if _, ok := used[pin]; ok {
			return &PinError{Err: ErrPinConflict, Pin: pin, Role: role}
		}
		used[pin] = role
		return nil
	}

	for i, s := range c.Steppers {
		n := strconv.Itoa(i)
		if err := claim(int(s.StepPin), "stepper "+n+" step"); err != nil {
			return err
		}
		if err := claim(int(s.DirPin), "stepper "+n+" dir"); err != nil {
			return err
		}
		if err := claim(s.EnablePin, "stepper "+n+" enable"); err != nil {
			return err
		}
	}
	if err := claim(c.EnablePin, "driver enable"); err != nil {
		return err
	}
	for i, pin := range c.DigitalInputs {
		if err := claim(int(pin), "input "+strconv.Itoa(i)); err != nil {
			return err
		}
	}
	for i, pin := range c.DigitalOutputs {
		if err := claim(int(pin), "output "+strconv.Itoa(i)); err != nil {
			return err
		}
	}
	if len(c.Servos) > 0 {
		if err := claim(int(c.I2CSDAPin), "i2c sda"); err != nil {
			return err
		}
		if err := claim(int(c.I2CSCLPin), "i2c scl"); err != nil {
			return err
		}
	}
	for _, s := range c.Servos {
		if s.MinDuty > s.MaxDuty {
			return ErrDutyLimits
		}
	}
	return nil
}

// FeederMB is the feeder main board: four steppers sharing one enable line
func FeederMB() *BoardConfig {
	return &BoardConfig{
		DeviceName:    "FEEDER MB",
		DeviceAddress: 0,
		Steppers: []StepperConfig{
			{StepPin: 28, DirPin: 27, EnablePin: NoPin, DriverAddress: 0},
			{StepPin: 26, DirPin: 22, EnablePin: NoPin, DriverAddress: 1},
			{StepPin: 21, DirPin: 20, EnablePin: NoPin, DriverAddress: 2},
			{StepPin: 19, DirPin: 18, EnablePin: NoPin, DriverAddress: 3},
		},
		StepperBackend:  BackendGPIO,
		StepperDefaults: MotionDefaults{Acceleration: 20000, MinSpeed: 16, MaxSpeed: 4000},
		EnablePin:       0,
		DigitalInputs:   []uint8{9, 8, 13, 12},
		DigitalOutputs:  []uint8{14, 15},
		ServoI2CAddress: 0x40,
		I2CSDAPin:       10,
		I2CSCLPin:       11,
		DriverUARTTxPin: 16,
		DriverUARTRxPin: 17,
		DriverUARTBaud:  400000,
	}
}

// SKRPico is the BTT SKR Pico: per-driver enables and a PCA9685 servo board
// on I2C0
func SKRPico() *BoardConfig {
	return &BoardConfig{
		DeviceName:    "SKR PICO",
		DeviceAddress: 0,
		Steppers: []StepperConfig{
			{StepPin: 11, DirPin: 10, EnablePin: 12, DriverAddress: 0},
			{StepPin: 6, DirPin: 5, EnablePin: 7, DriverAddress: 1},
			{StepPin: 19, DirPin: 28, EnablePin: 2, DriverAddress: 2},
			{StepPin: 14, DirPin: 13, EnablePin: 15, DriverAddress: 3},
		},
		StepperBackend:  BackendPIO,
		StepperDefaults: MotionDefaults{Acceleration: 20000, MinSpeed: 16, MaxSpeed: 4000},
		EnablePin:       NoPin,
		DigitalInputs:   []uint8{4, 3, 25, 16},
		DigitalOutputs:  []uint8{21, 23},
		Servos: []ServoConfig{
			{Output: 0, MinDuty: 102, MaxDuty: 512},
			{Output: 1, MinDuty: 102, MaxDuty: 512},
			{Output: 2, MinDuty: 102, MaxDuty: 512},
			{Output: 3, MinDuty: 102, MaxDuty: 512},
		},
		ServoI2CAddress: 0x40,
		I2CSDAPin:       0,
		I2CSCLPin:       1,
		DriverUARTTxPin: 8,
		DriverUARTRxPin: 9,
		DriverUARTBaud:  400000,
	}
}

// Profile returns a built-in board by name
func Profile(name string) (*BoardConfig, bool) {
	switch name {
	case "feeder_mb", "":
		return FeederMB(), true
	case "skr_pico":
		return SKRPico(), true
	}
	return nil, false
}
