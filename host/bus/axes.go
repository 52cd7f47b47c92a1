package bus

import (
	"github.com/pkg/errors"

	"sorterfw/core"
	"sorterfw/protocol"
)

// Stepper addresses one stepper channel on a board
type Stepper struct {
	dev *Device
	ch  uint8
}

// Stepper returns a client for stepper channel ch
func (d *Device) Stepper(ch uint8) *Stepper {
	return &Stepper{dev: d, ch: ch}
}

func (s *Stepper) call(index uint8, payload []byte) ([]byte, error) {
	return s.dev.call(core.TableStepper, index, s.ch, payload)
}

// MoveSteps starts a relative move. It reports false when the axis is busy
// moving in the opposite direction.
func (s *Stepper) MoveSteps(distance int32) (bool, error) {
	resp, err := s.call(core.CmdMoveSteps, newArgs().i32(distance).bytes())
	if err != nil {
		return false, err
	}
	return decodeBool(resp)
}

// MoveAtSpeed runs the axis continuously at a signed speed; 0 decelerates to a stop
func (s *Stepper) MoveAtSpeed(speed int32) (bool, error) {
	resp, err := s.call(core.CmdMoveAtSpeed, newArgs().i32(speed).bytes())
	if err != nil {
		return false, err
	}
	return decodeBool(resp)
}

func (s *Stepper) SetSpeedLimits(minSpeed, maxSpeed uint32) error {
	_, err := s.call(core.CmdSetSpeedLimits, newArgs().u32(minSpeed).u32(maxSpeed).bytes())
	return err
}

func (s *Stepper) SetAcceleration(accel uint32) error {
	_, err := s.call(core.CmdSetAcceleration, newArgs().u32(accel).bytes())
	return err
}

func (s *Stepper) IsStopped() (bool, error) {
	resp, err := s.call(core.CmdIsStopped, nil)
	if err != nil {
		return false, err
	}
	return decodeBool(resp)
}

func (s *Stepper) Position() (int32, error) {
	resp, err := s.call(core.CmdGetPosition, nil)
	if err != nil {
		return 0, err
	}
	pos, err := protocol.DecodeInt32(&resp)
	return pos, errors.Wrap(err, "decode position")
}

// SetPosition redefines the current position. The board ignores it while
// the axis is moving.
func (s *Stepper) SetPosition(position int32) error {
	_, err := s.call(core.CmdSetPosition, newArgs().i32(position).bytes())
	return err
}

// Home runs at speed until GPIO pin reads activeLevel, then stops and zeroes
// the position
func (s *Stepper) Home(speed int32, pin uint8, activeLevel bool) error {
	_, err := s.call(core.CmdHome, newArgs().i32(speed).u8(pin).bool(activeLevel).bytes())
	return err
}

// SetDriverEnabled drives the channel's driver enable line
func (s *Stepper) SetDriverEnabled(enabled bool) error {
	_, err := s.dev.call(core.TableStepperDrv, core.CmdDrvSetEnabled, s.ch, newArgs().bool(enabled).bytes())
	return err
}

// Servo addresses one servo channel on a board
type Servo struct {
	dev *Device
	ch  uint8
}

// Servo returns a client for servo channel ch
func (d *Device) Servo(ch uint8) *Servo {
	return &Servo{dev: d, ch: ch}
}

func (s *Servo) call(index uint8, payload []byte) ([]byte, error) {
	return s.dev.call(core.TableServo, index, s.ch, payload)
}

func (s *Servo) SetEnabled(enabled bool) error {
	_, err := s.call(core.CmdServoSetEnabled, newArgs().bool(enabled).bytes())
	return err
}

// MoveTo starts a move to position in tenths of a degree (0-1800)
func (s *Servo) MoveTo(position uint16) (bool, error) {
	resp, err := s.call(core.CmdServoMoveTo, newArgs().u16(position).bytes())
	if err != nil {
		return false, err
	}
	return decodeBool(resp)
}

func (s *Servo) SetSpeedLimits(minSpeed, maxSpeed uint16) error {
	_, err := s.call(core.CmdServoSetSpeedLimits, newArgs().u16(minSpeed).u16(maxSpeed).bytes())
	return err
}

func (s *Servo) SetAcceleration(accel uint16) error {
	_, err := s.call(core.CmdServoSetAccel, newArgs().u16(accel).bytes())
	return err
}

func (s *Servo) SetDutyLimits(minDuty, maxDuty uint16) error {
	_, err := s.call(core.CmdServoSetDutyLimits, newArgs().u16(minDuty).u16(maxDuty).bytes())
	return err
}

func (s *Servo) IsStopped() (bool, error) {
	resp, err := s.call(core.CmdServoIsStopped, nil)
	if err != nil {
		return false, err
	}
	return decodeBool(resp)
}

func (s *Servo) Position() (uint16, error) {
	resp, err := s.call(core.CmdServoGetPosition, nil)
	if err != nil {
		return 0, err
	}
	pos, err := protocol.DecodeUint16(&resp)
	return pos, errors.Wrap(err, "decode position")
}

// Stop decelerates the servo to a stop
func (s *Servo) Stop() error {
	_, err := s.call(core.CmdServoStop, nil)
	return err
}

// ReadInput samples digital input ch. The board expects one unused pad byte.
func (d *Device) ReadInput(ch uint8) (bool, error) {
	resp, err := d.call(core.TableDigitalIO, core.CmdDigitalRead, ch, newArgs().u8(0).bytes())
	if err != nil {
		return false, err
	}
	return decodeBool(resp)
}

// WriteOutput drives digital output ch. The value is the first payload byte,
// followed by a pad byte.
func (d *Device) WriteOutput(ch uint8, value bool) error {
	_, err := d.call(core.TableDigitalIO, core.CmdDigitalWrite, ch, newArgs().bool(value).u8(0).bytes())
	return err
}
