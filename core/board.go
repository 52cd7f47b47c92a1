package core

import (
	"encoding/json"
	"errors"

	"sorterfw/config"
	"sorterfw/protocol"
)

var (
	ErrNoGPIO         = errors.New("gpio driver not configured")
	ErrNoServoSink    = errors.New("servos configured without a duty sink")
	ErrInvalidChannel = errors.New("invalid channel")
)

// BackendFactory creates the step backend for one stepper channel
type BackendFactory func(channel uint8, cfg config.StepperConfig) (StepperBackend, error)

// Board owns the axes and I/O of one interface board, sized from its config
type Board struct {
	Config *config.BoardConfig
	// Log receives debug output when set; drained by GET_LOG
	Log *LogBuffer

	gpio     GPIODriver
	steppers []*Stepper
	configs  []config.StepperConfig
	servos   []*Servo
	inputs   []GPIOPin
	outputs  []GPIOPin

	stepTimer   Timer
	motionTimer Timer
	servoTimer  Timer
	ticking     bool
}

// NewBoard builds the axes described by cfg. Hardware is not touched until Init.
func NewBoard(cfg *config.BoardConfig, gpio GPIODriver, newBackend BackendFactory, sink DutySink) (*Board, error) {
	if gpio == nil {
		return nil, ErrNoGPIO
	}
	if len(cfg.Servos) > 0 && sink == nil {
		return nil, ErrNoServoSink
	}

	b := &Board{
		Config:  cfg,
		gpio:    gpio,
		configs: cfg.Steppers,
	}
	for i, sc := range cfg.Steppers {
		backend, err := newBackend(uint8(i), sc)
		if err != nil {
			return nil, err
		}
		b.steppers = append(b.steppers, NewStepper(uint8(i), backend, gpio))
	}
	for i, sc := range cfg.Servos {
		b.servos = append(b.servos, NewServo(uint8(i), sink, sc.Output))
	}
	for _, pin := range cfg.DigitalInputs {
		b.inputs = append(b.inputs, GPIOPin(pin))
	}
	for _, pin := range cfg.DigitalOutputs {
		b.outputs = append(b.outputs, GPIOPin(pin))
	}

	b.stepTimer.Handler = b.stepTick
	b.motionTimer.Handler = b.motionTick
	b.servoTimer.Handler = b.servoTick
	return b, nil
}

// Init configures every pin, stops all axes and applies the default motion
// parameters. Safe to call again to return to a known state.
func (b *Board) Init() error {
	d := b.Config.StepperDefaults
	for i, s := range b.steppers {
		sc := b.configs[i]
		if err := s.backend.Init(GPIOPin(sc.StepPin), GPIOPin(sc.DirPin), sc.InvertStep, sc.InvertDir); err != nil {
			return err
		}
		s.Halt()
		DebugPrintln("[BOARD] stepper " + itoa(i) + " on " + s.backend.GetName())
		s.SetAcceleration(d.Acceleration)
		s.SetSpeedLimits(d.MinSpeed, d.MaxSpeed)
	}

	// Drivers are enabled by pulling the active-low enable lines down
	if err := b.configureEnable(b.Config.EnablePin); err != nil {
		return err
	}
	for _, sc := range b.configs {
		if err := b.configureEnable(sc.EnablePin); err != nil {
			return err
		}
	}

	for _, pin := range b.inputs {
		if err := b.gpio.ConfigureInputPullUp(pin); err != nil {
			return err
		}
	}
	for _, pin := range b.outputs {
		if err := b.gpio.ConfigureOutput(pin); err != nil {
			return err
		}
		if err := b.gpio.SetPin(pin, false); err != nil {
			return err
		}
	}

	for i, s := range b.servos {
		sc := b.Config.Servos[i]
		s.SetEnabled(false)
		s.SetDutyCycleLimits(sc.MinDuty, sc.MaxDuty)
	}

	DebugPrintln("[BOARD] initialized " + b.Config.DeviceName)
	return nil
}

func (b *Board) configureEnable(pin int) error {
	if pin == config.NoPin {
		return nil
	}
	if err := b.gpio.ConfigureOutput(GPIOPin(pin)); err != nil {
		return err
	}
	return b.gpio.SetPin(GPIOPin(pin), false)
}

// Stepper returns the stepper on channel ch
func (b *Board) Stepper(ch uint8) (*Stepper, bool) {
	if int(ch) >= len(b.steppers) {
		return nil, false
	}
	return b.steppers[ch], true
}

// Servo returns the servo on channel ch
func (b *Board) Servo(ch uint8) (*Servo, bool) {
	if int(ch) >= len(b.servos) {
		return nil, false
	}
	return b.servos[ch], true
}

func (b *Board) StepperCount() int       { return len(b.steppers) }
func (b *Board) ServoCount() int         { return len(b.servos) }
func (b *Board) DigitalInputCount() int  { return len(b.inputs) }
func (b *Board) DigitalOutputCount() int { return len(b.outputs) }

// ReadInput samples digital input ch
func (b *Board) ReadInput(ch uint8) (bool, error) {
	if int(ch) >= len(b.inputs) {
		return false, ErrInvalidChannel
	}
	return b.gpio.ReadPin(b.inputs[ch]), nil
}

// WriteOutput drives digital output ch
func (b *Board) WriteOutput(ch uint8, value bool) error {
	if int(ch) >= len(b.outputs) {
		return ErrInvalidChannel
	}
	return b.gpio.SetPin(b.outputs[ch], value)
}

// SetDriverEnabled switches the driver of stepper ch. Boards with a single
// shared enable line switch every driver.
func (b *Board) SetDriverEnabled(ch uint8, enabled bool) error {
	if int(ch) >= len(b.steppers) {
		return ErrInvalidChannel
	}
	pin := b.configs[ch].EnablePin
	if pin == config.NoPin {
		pin = b.Config.EnablePin
	}
	if pin == config.NoPin {
		return nil
	}
	return b.gpio.SetPin(GPIOPin(pin), !enabled)
}

// Identity is the INIT response document
type Identity struct {
	FirmwareVersion    string `json:"firmware_version"`
	DeviceName         string `json:"device_name"`
	DeviceAddress      uint8  `json:"device_address"`
	StepperCount       int    `json:"stepper_count"`
	DigitalInputCount  int    `json:"digital_input_count"`
	DigitalOutputCount int    `json:"digital_output_count"`
	ServoCount         int    `json:"servo_count"`
}

// Describe returns the board identity as JSON
func (b *Board) Describe() ([]byte, error) {
	return json.Marshal(Identity{
		FirmwareVersion:    protocol.Version,
		DeviceName:         b.Config.DeviceName,
		DeviceAddress:      b.Config.DeviceAddress,
		StepperCount:       len(b.steppers),
		DigitalInputCount:  len(b.inputs),
		DigitalOutputCount: len(b.outputs),
		ServoCount:         len(b.servos),
	})
}

// StartTicks schedules the step, motion and servo tick timers. Must not be
// called from a command handler.
func (b *Board) StartTicks() {
	if b.ticking {
		return
	}
	b.ticking = true
	now := GetTime()
	b.stepTimer.WakeTime = now + TimerPeriod(StepTickRateHz)
	b.motionTimer.WakeTime = now + TimerPeriod(MotionUpdateRateHz)
	b.servoTimer.WakeTime = now + TimerPeriod(ServoUpdateRateHz)
	ScheduleTimer(&b.stepTimer)
	ScheduleTimer(&b.motionTimer)
	if len(b.servos) > 0 {
		ScheduleTimer(&b.servoTimer)
	}
}

// StopTicks removes the tick timers
func (b *Board) StopTicks() {
	if !b.ticking {
		return
	}
	b.ticking = false
	CancelTimer(&b.stepTimer)
	CancelTimer(&b.motionTimer)
	CancelTimer(&b.servoTimer)
}

func (b *Board) stepTick(t *Timer) uint8 {
	for _, s := range b.steppers {
		s.StepgenTick()
	}
	t.WakeTime += TimerPeriod(StepTickRateHz)
	return SF_RESCHEDULE
}

func (b *Board) motionTick(t *Timer) uint8 {
	for _, s := range b.steppers {
		s.MotionUpdateTick()
	}
	t.WakeTime += TimerPeriod(MotionUpdateRateHz)
	return SF_RESCHEDULE
}

func (b *Board) servoTick(t *Timer) uint8 {
	for _, s := range b.servos {
		s.Update()
	}
	t.WakeTime += TimerPeriod(ServoUpdateRateHz)
	return SF_RESCHEDULE
}
