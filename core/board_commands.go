package core

import (
	"errors"

	"sorterfw/config"
	"sorterfw/protocol"
)

// Command table indices
const (
	TableBase       = 0
	TableStepper    = 1
	TableStepperDrv = 2
	TableDigitalIO  = 3
	TableServo      = 4
)

// Base commands
const (
	CmdInit   = 0
	CmdPing   = 1
	CmdGetLog = 2
)

// Stepper commands
const (
	CmdMoveSteps       = 0
	CmdMoveAtSpeed     = 1
	CmdSetSpeedLimits  = 2
	CmdSetAcceleration = 3
	CmdIsStopped       = 4
	CmdGetPosition     = 5
	CmdSetPosition     = 6
	CmdHome            = 7
)

// Stepper driver commands
const (
	CmdDrvSetEnabled = 0
)

// Digital IO commands
const (
	CmdDigitalRead  = 0
	CmdDigitalWrite = 1
)

// Servo commands
const (
	CmdServoSetEnabled     = 0
	CmdServoMoveTo         = 1
	CmdServoSetSpeedLimits = 2
	CmdServoSetAccel       = 3
	CmdServoSetDutyLimits  = 4
	CmdServoIsStopped      = 5
	CmdServoGetPosition    = 6
	CmdServoStop           = 7
)

var ErrHomePin = errors.New("home pin out of range")

type tableEntry struct {
	index uint8
	cmd   Command
}

func buildTable(prefix string, entries []tableEntry) (*CommandTable, error) {
	t := &CommandTable{Prefix: prefix}
	for _, e := range entries {
		if err := t.Add(e.index, e.cmd); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// RegisterCommands installs the base, stepper, driver, digital IO and servo
// tables for this board in r
func (b *Board) RegisterCommands(r *CommandRegistry) error {
	stepperCh := func(ch uint8) bool { return int(ch) < len(b.steppers) }
	inputCh := func(ch uint8) bool { return int(ch) < len(b.inputs) }
	outputCh := func(ch uint8) bool { return int(ch) < len(b.outputs) }
	servoCh := func(ch uint8) bool { return int(ch) < len(b.servos) }

	tables := []struct {
		index   uint8
		prefix  string
		entries []tableEntry
	}{
		{TableBase, "", []tableEntry{
			{CmdInit, Command{Name: "INIT", RetFormat: "*", Handler: b.cmdInit}},
			{CmdPing, Command{Name: "PING", ArgFormat: "*", RetFormat: "*", Handler: cmdPing}},
			{CmdGetLog, Command{Name: "GET_LOG", RetFormat: "*", Handler: b.cmdGetLog}},
		}},
		{TableStepper, "STEPPER", []tableEntry{
			{CmdMoveSteps, Command{Name: "MOVE_STEPS", ArgFormat: "i", RetFormat: "?", ValidChannel: stepperCh, Handler: b.cmdMoveSteps}},
			{CmdMoveAtSpeed, Command{Name: "MOVE_AT_SPEED", ArgFormat: "i", RetFormat: "?", ValidChannel: stepperCh, Handler: b.cmdMoveAtSpeed}},
			{CmdSetSpeedLimits, Command{Name: "SET_SPEED_LIMITS", ArgFormat: "II", ValidChannel: stepperCh, Handler: b.cmdSetSpeedLimits}},
			{CmdSetAcceleration, Command{Name: "SET_ACCELERATION", ArgFormat: "I", ValidChannel: stepperCh, Handler: b.cmdSetAcceleration}},
			{CmdIsStopped, Command{Name: "IS_STOPPED", RetFormat: "B", ValidChannel: stepperCh, Handler: b.cmdIsStopped}},
			{CmdGetPosition, Command{Name: "GET_POSITION", RetFormat: "i", ValidChannel: stepperCh, Handler: b.cmdGetPosition}},
			{CmdSetPosition, Command{Name: "SET_POSITION", ArgFormat: "i", ValidChannel: stepperCh, Handler: b.cmdSetPosition}},
			{CmdHome, Command{Name: "HOME", ArgFormat: "iBB", ValidChannel: stepperCh, Handler: b.cmdHome}},
		}},
		{TableStepperDrv, "STEPPER_DRV", []tableEntry{
			{CmdDrvSetEnabled, Command{Name: "SET_ENABLED", ArgFormat: "B", ValidChannel: stepperCh, Handler: b.cmdDrvSetEnabled}},
		}},
		{TableDigitalIO, "DIGITAL_IO", []tableEntry{
			{CmdDigitalRead, Command{Name: "READ", ArgFormat: "B", RetFormat: "B", ValidChannel: inputCh, Handler: b.cmdDigitalRead}},
			{CmdDigitalWrite, Command{Name: "WRITE", ArgFormat: "BB", ValidChannel: outputCh, Handler: b.cmdDigitalWrite}},
		}},
		{TableServo, "SERVO", []tableEntry{
			{CmdServoSetEnabled, Command{Name: "SET_ENABLED", ArgFormat: "B", ValidChannel: servoCh, Handler: b.cmdServoSetEnabled}},
			{CmdServoMoveTo, Command{Name: "MOVE_TO", ArgFormat: "H", RetFormat: "?", ValidChannel: servoCh, Handler: b.cmdServoMoveTo}},
			{CmdServoSetSpeedLimits, Command{Name: "SET_SPEED_LIMITS", ArgFormat: "HH", ValidChannel: servoCh, Handler: b.cmdServoSetSpeedLimits}},
			{CmdServoSetAccel, Command{Name: "SET_ACCELERATION", ArgFormat: "H", ValidChannel: servoCh, Handler: b.cmdServoSetAccel}},
			{CmdServoSetDutyLimits, Command{Name: "SET_DUTY_LIMITS", ArgFormat: "HH", ValidChannel: servoCh, Handler: b.cmdServoSetDutyLimits}},
			{CmdServoIsStopped, Command{Name: "IS_STOPPED", RetFormat: "B", ValidChannel: servoCh, Handler: b.cmdServoIsStopped}},
			{CmdServoGetPosition, Command{Name: "GET_POSITION", RetFormat: "H", ValidChannel: servoCh, Handler: b.cmdServoGetPosition}},
			{CmdServoStop, Command{Name: "STOP", ValidChannel: servoCh, Handler: b.cmdServoStop}},
		}},
	}

	for _, tt := range tables {
		t, err := buildTable(tt.prefix, tt.entries)
		if err != nil {
			return err
		}
		if err := r.Register(tt.index, t); err != nil {
			return err
		}
	}
	return nil
}

// Base

func (b *Board) cmdInit(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	if err := b.Init(); err != nil {
		return err
	}
	doc, err := b.Describe()
	if err != nil {
		return err
	}
	out.Output(doc)
	return nil
}

func cmdPing(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	out.Output(*args)
	return nil
}

// cmdGetLog flushes pending timing events into the log and returns the
// oldest unread text. An empty reply means the log is drained.
func (b *Board) cmdGetLog(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	if b.Log == nil {
		return nil
	}
	DumpTimingRing()
	var chunk [protocol.MaxPayload]byte
	n := b.Log.Read(chunk[:])
	out.Output(chunk[:n])
	return nil
}

// Stepper

func (b *Board) cmdMoveSteps(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	distance, err := protocol.DecodeInt32(args)
	if err != nil {
		return err
	}
	protocol.EncodeBool(out, b.steppers[ch].MoveSteps(distance))
	return nil
}

func (b *Board) cmdMoveAtSpeed(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	speed, err := protocol.DecodeInt32(args)
	if err != nil {
		return err
	}
	protocol.EncodeBool(out, b.steppers[ch].MoveAtSpeed(speed))
	return nil
}

func (b *Board) cmdSetSpeedLimits(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	minSpeed, err := protocol.DecodeUint32(args)
	if err != nil {
		return err
	}
	maxSpeed, err := protocol.DecodeUint32(args)
	if err != nil {
		return err
	}
	b.steppers[ch].SetSpeedLimits(minSpeed, maxSpeed)
	return nil
}

func (b *Board) cmdSetAcceleration(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	accel, err := protocol.DecodeUint32(args)
	if err != nil {
		return err
	}
	b.steppers[ch].SetAcceleration(accel)
	return nil
}

func (b *Board) cmdIsStopped(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	protocol.EncodeBool(out, b.steppers[ch].IsStopped())
	return nil
}

func (b *Board) cmdGetPosition(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	protocol.EncodeInt32(out, b.steppers[ch].Position())
	return nil
}

func (b *Board) cmdSetPosition(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	position, err := protocol.DecodeInt32(args)
	if err != nil {
		return err
	}
	// Ignored while moving
	b.steppers[ch].SetPosition(position)
	return nil
}

func (b *Board) cmdHome(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	speed, err := protocol.DecodeInt32(args)
	if err != nil {
		return err
	}
	pin, err := protocol.DecodeUint8(args)
	if err != nil {
		return err
	}
	activeLevel, err := protocol.DecodeBool(args)
	if err != nil {
		return err
	}
	if int(pin) > config.MaxGPIO {
		return ErrHomePin
	}
	b.steppers[ch].Home(speed, GPIOPin(pin), activeLevel)
	return nil
}

// Stepper driver

func (b *Board) cmdDrvSetEnabled(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	enabled, err := protocol.DecodeBool(args)
	if err != nil {
		return err
	}
	return b.SetDriverEnabled(ch, enabled)
}

// Digital IO

func (b *Board) cmdDigitalRead(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	v, err := b.ReadInput(ch)
	if err != nil {
		return err
	}
	protocol.EncodeBool(out, v)
	return nil
}

func (b *Board) cmdDigitalWrite(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	v, err := protocol.DecodeBool(args)
	if err != nil {
		return err
	}
	return b.WriteOutput(ch, v)
}

// Servo

func (b *Board) cmdServoSetEnabled(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	enabled, err := protocol.DecodeBool(args)
	if err != nil {
		return err
	}
	b.servos[ch].SetEnabled(enabled)
	return nil
}

func (b *Board) cmdServoMoveTo(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	position, err := protocol.DecodeUint16(args)
	if err != nil {
		return err
	}
	protocol.EncodeBool(out, b.servos[ch].MoveTo(position))
	return nil
}

func (b *Board) cmdServoSetSpeedLimits(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	lo, err := protocol.DecodeUint16(args)
	if err != nil {
		return err
	}
	hi, err := protocol.DecodeUint16(args)
	if err != nil {
		return err
	}
	b.servos[ch].SetSpeedLimits(lo, hi)
	return nil
}

func (b *Board) cmdServoSetAccel(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	accel, err := protocol.DecodeUint16(args)
	if err != nil {
		return err
	}
	b.servos[ch].SetAcceleration(accel)
	return nil
}

func (b *Board) cmdServoSetDutyLimits(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	lo, err := protocol.DecodeUint16(args)
	if err != nil {
		return err
	}
	hi, err := protocol.DecodeUint16(args)
	if err != nil {
		return err
	}
	b.servos[ch].SetDutyCycleLimits(lo, hi)
	return nil
}

func (b *Board) cmdServoIsStopped(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	protocol.EncodeBool(out, b.servos[ch].IsStopped())
	return nil
}

func (b *Board) cmdServoGetPosition(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	protocol.EncodeUint16(out, b.servos[ch].CurrentPosition())
	return nil
}

func (b *Board) cmdServoStop(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
	b.servos[ch].StopMotion()
	return nil
}
