package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"sorterfw/core"
	"sorterfw/host/bus"
)

var errUsage = errors.New("missing argument (type 'help')")

func parseInt(parts []string, i int, bits int) (int64, error) {
	if i >= len(parts) {
		return 0, errUsage
	}
	v, err := strconv.ParseInt(parts[i], 0, bits)
	return v, errors.Wrapf(err, "argument %q", parts[i])
}

func parseUint(parts []string, i int, bits int) (uint64, error) {
	if i >= len(parts) {
		return 0, errUsage
	}
	v, err := strconv.ParseUint(parts[i], 0, bits)
	return v, errors.Wrapf(err, "argument %q", parts[i])
}

func parseBool(parts []string, i int) (bool, error) {
	if i >= len(parts) {
		return false, errUsage
	}
	v, err := strconv.ParseBool(parts[i])
	return v, errors.Wrapf(err, "argument %q", parts[i])
}

func printIdentity(id *core.Identity) {
	fmt.Printf("%s at address %d, firmware %s\n", id.DeviceName, id.DeviceAddress, id.FirmwareVersion)
	fmt.Printf("  steppers %d, servos %d, inputs %d, outputs %d\n",
		id.StepperCount, id.ServoCount, id.DigitalInputCount, id.DigitalOutputCount)
}

func accepted(out io.Writer, ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "busy")
		return nil
	}
	fmt.Fprintln(out, "ok")
	return nil
}

// runCommand executes one REPL line against dev
func runCommand(dev *bus.Device, parts []string, out io.Writer) error {
	switch parts[0] {
	case "init":
		id, err := dev.Init()
		if err != nil {
			return err
		}
		printIdentity(id)
		return nil

	case "ping":
		var data []byte
		if len(parts) > 1 {
			data = []byte(parts[1])
		}
		if err := dev.Ping(data); err != nil {
			return err
		}
		fmt.Fprintln(out, "pong")
		return nil

	case "log":
		log, err := dev.ReadLog()
		if len(log) > 0 {
			fmt.Fprint(out, string(log))
		}
		return err

	case "read":
		ch, err := parseUint(parts, 1, 8)
		if err != nil {
			return err
		}
		v, err := dev.ReadInput(uint8(ch))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "input %d = %v\n", ch, v)
		return nil

	case "write":
		ch, err := parseUint(parts, 1, 8)
		if err != nil {
			return err
		}
		v, err := parseBool(parts, 2)
		if err != nil {
			return err
		}
		return dev.WriteOutput(uint8(ch), v)

	case "stepper":
		ch, err := parseUint(parts, 1, 8)
		if err != nil {
			return err
		}
		if len(parts) < 3 {
			return errUsage
		}
		return runStepper(dev.Stepper(uint8(ch)), parts[2:], out)

	case "servo":
		ch, err := parseUint(parts, 1, 8)
		if err != nil {
			return err
		}
		if len(parts) < 3 {
			return errUsage
		}
		return runServo(dev.Servo(uint8(ch)), parts[2:], out)
	}
	return errors.Errorf("unknown command: %s (type 'help' for available commands)", parts[0])
}

func runStepper(s *bus.Stepper, parts []string, out io.Writer) error {
	switch parts[0] {
	case "move":
		steps, err := parseInt(parts, 1, 32)
		if err != nil {
			return err
		}
		ok, err := s.MoveSteps(int32(steps))
		return accepted(out, ok, err)

	case "speed":
		speed, err := parseInt(parts, 1, 32)
		if err != nil {
			return err
		}
		ok, err := s.MoveAtSpeed(int32(speed))
		return accepted(out, ok, err)

	case "limits":
		lo, err := parseUint(parts, 1, 32)
		if err != nil {
			return err
		}
		hi, err := parseUint(parts, 2, 32)
		if err != nil {
			return err
		}
		return s.SetSpeedLimits(uint32(lo), uint32(hi))

	case "accel":
		accel, err := parseUint(parts, 1, 32)
		if err != nil {
			return err
		}
		return s.SetAcceleration(uint32(accel))

	case "status":
		pos, err := s.Position()
		if err != nil {
			return err
		}
		stopped, err := s.IsStopped()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "position %d, stopped %v\n", pos, stopped)
		return nil

	case "setpos":
		pos, err := parseInt(parts, 1, 32)
		if err != nil {
			return err
		}
		return s.SetPosition(int32(pos))

	case "home":
		speed, err := parseInt(parts, 1, 32)
		if err != nil {
			return err
		}
		pin, err := parseUint(parts, 2, 8)
		if err != nil {
			return err
		}
		level, err := parseBool(parts, 3)
		if err != nil {
			return err
		}
		return s.Home(int32(speed), uint8(pin), level)

	case "enable":
		on, err := parseBool(parts, 1)
		if err != nil {
			return err
		}
		return s.SetDriverEnabled(on)
	}
	return errors.Errorf("unknown stepper command: %s", parts[0])
}

func runServo(s *bus.Servo, parts []string, out io.Writer) error {
	switch parts[0] {
	case "enable":
		on, err := parseBool(parts, 1)
		if err != nil {
			return err
		}
		return s.SetEnabled(on)

	case "move":
		pos, err := parseUint(parts, 1, 16)
		if err != nil {
			return err
		}
		ok, err := s.MoveTo(uint16(pos))
		return accepted(out, ok, err)

	case "limits", "duty":
		lo, err := parseUint(parts, 1, 16)
		if err != nil {
			return err
		}
		hi, err := parseUint(parts, 2, 16)
		if err != nil {
			return err
		}
		if parts[0] == "duty" {
			return s.SetDutyLimits(uint16(lo), uint16(hi))
		}
		return s.SetSpeedLimits(uint16(lo), uint16(hi))

	case "accel":
		accel, err := parseUint(parts, 1, 16)
		if err != nil {
			return err
		}
		return s.SetAcceleration(uint16(accel))

	case "status":
		pos, err := s.Position()
		if err != nil {
			return err
		}
		stopped, err := s.IsStopped()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "position %d, stopped %v\n", pos, stopped)
		return nil

	case "stop":
		return s.Stop()
	}
	return errors.Errorf("unknown servo command: %s", parts[0])
}
