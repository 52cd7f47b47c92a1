package core

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"sorterfw/protocol"
)

// encodeArgs packs values little-endian in order
func encodeArgs(values ...any) []byte {
	out := protocol.NewScratchOutput()
	for _, v := range values {
		switch v := v.(type) {
		case int32:
			protocol.EncodeInt32(out, v)
		case uint32:
			protocol.EncodeUint32(out, v)
		case uint16:
			protocol.EncodeUint16(out, v)
		case uint8:
			protocol.EncodeUint8(out, v)
		case bool:
			protocol.EncodeBool(out, v)
		default:
			panic("unsupported argument type")
		}
	}
	return append([]byte(nil), out.Result()...)
}

func dispatch(r *CommandRegistry, table, index, ch uint8, payload []byte) (uint8, []byte) {
	out := protocol.NewScratchOutput()
	req := &protocol.Message{
		Command: protocol.MakeCommand(table, index),
		Channel: ch,
		Payload: payload,
	}
	code := r.Dispatch(req, out)
	return code, append([]byte(nil), out.Result()...)
}

func newCommandBoard(t *testing.T) (*testBoard, *CommandRegistry) {
	t.Helper()
	b := newTestBoard(t, testBoardConfig())
	r := NewCommandRegistry()
	if err := b.RegisterCommands(r); err != nil {
		t.Fatalf("RegisterCommands: %v", err)
	}
	return b, r
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		format string
		want   uint8
		err    error
	}{
		{"", 0, nil},
		{"i", 4, nil},
		{"II", 8, nil},
		{"iBB", 6, nil},
		{"HH", 4, nil},
		{"?", 1, nil},
		{"*", PayloadVariable, nil},
		{"q", 0, ErrArgFormat},
	}
	for _, tt := range tests {
		got, err := formatSize(tt.format)
		if got != tt.want || err != tt.err {
			t.Errorf("formatSize(%q) = %d, %v; want %d, %v", tt.format, got, err, tt.want, tt.err)
		}
	}
}

func TestCommandTableAdd(t *testing.T) {
	table := &CommandTable{Prefix: "TEST"}
	h := func(ch uint8, args *[]byte, out protocol.OutputBuffer) error { return nil }

	if err := table.Add(3, Command{Name: "A", ArgFormat: "iH", Handler: h}); err != nil {
		t.Fatal(err)
	}
	if table.Commands[3].PayloadLen != 6 {
		t.Errorf("PayloadLen = %d, want 6", table.Commands[3].PayloadLen)
	}
	if err := table.Add(3, Command{Name: "B", Handler: h}); err != ErrCommandTaken {
		t.Errorf("duplicate slot err = %v", err)
	}
	if err := table.Add(16, Command{Name: "C", Handler: h}); err != ErrTableIndex {
		t.Errorf("slot 16 err = %v", err)
	}
	if err := table.Add(4, Command{Name: "D", ArgFormat: "x", Handler: h}); err != ErrArgFormat {
		t.Errorf("bad format err = %v", err)
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewCommandRegistry()
	table := &CommandTable{}
	if err := r.Register(2, table); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(2, &CommandTable{}); err != ErrTableInUse {
		t.Errorf("duplicate table err = %v", err)
	}
	if err := r.Register(protocol.MaxTables, &CommandTable{}); err != ErrTableIndex {
		t.Errorf("table 8 err = %v", err)
	}
	if r.Table(2) != table {
		t.Error("Table(2) did not return the registered table")
	}
	r.Reset()
	if r.Table(2) != nil {
		t.Error("Reset kept tables")
	}
}

func TestDispatchErrors(t *testing.T) {
	_, r := newCommandBoard(t)

	tests := []struct {
		name    string
		table   uint8
		index   uint8
		ch      uint8
		payload []byte
		want    string
	}{
		{"unknown table", 6, 0, 0, nil, "Invalid command 96"},
		{"empty slot", TableStepper, 9, 0, nil, "Invalid command 25"},
		{"driver register slot", TableStepperDrv, 1, 0, encodeArgs(uint16(16)), "Invalid command 33"},
		{"short payload", TableStepper, CmdMoveSteps, 0, []byte{1, 2}, "MOVE_STEPS: Invalid payload length 2, expected 4"},
		{"payload on query", TableStepper, CmdIsStopped, 0, []byte{0}, "IS_STOPPED: Invalid payload length 1, expected 0"},
		{"stepper channel", TableStepper, CmdMoveSteps, 9, encodeArgs(int32(10)), "MOVE_STEPS: Invalid channel 9"},
		{"input channel", TableDigitalIO, CmdDigitalRead, 2, []byte{0}, "READ: Invalid channel 2"},
		{"output channel", TableDigitalIO, CmdDigitalWrite, 1, []byte{1, 0}, "WRITE: Invalid channel 1"},
		{"servo channel", TableServo, CmdServoStop, 1, nil, "STOP: Invalid channel 1"},
		{"home pin", TableStepper, CmdHome, 0, encodeArgs(int32(100), uint8(30), true), "HOME: home pin out of range"},
	}

	for _, tt := range tests {
		code, resp := dispatch(r, tt.table, tt.index, tt.ch, tt.payload)
		wantCode := protocol.MakeCommand(tt.table, tt.index) | protocol.CommandErrorFlag
		if code != wantCode {
			t.Errorf("%s: code %#x, want %#x", tt.name, code, wantCode)
		}
		if string(resp) != tt.want {
			t.Errorf("%s: %q, want %q", tt.name, resp, tt.want)
		}
	}
}

func TestDispatchRecordsErrors(t *testing.T) {
	_, r := newCommandBoard(t)
	ClearTimingRing()
	dispatch(r, 7, 15, 4, nil)

	events := TimingEvents()
	if len(events) == 0 {
		t.Fatal("no timing event recorded")
	}
	ev := events[len(events)-1]
	if ev.EventType != EvtCommandErr || ev.Channel != 4 || ev.Value1 != 0x7F {
		t.Errorf("event = %+v", ev)
	}
}

func TestBaseCommands(t *testing.T) {
	b, r := newCommandBoard(t)

	code, resp := dispatch(r, TableBase, CmdInit, 0, nil)
	if code != 0x00 {
		t.Fatalf("INIT failed: %s", resp)
	}
	var id Identity
	if err := json.Unmarshal(resp, &id); err != nil {
		t.Fatalf("INIT response %q: %v", resp, err)
	}
	want := Identity{
		FirmwareVersion:    "1.0",
		DeviceName:         "TEST IF",
		DeviceAddress:      3,
		StepperCount:       2,
		DigitalInputCount:  2,
		DigitalOutputCount: 1,
		ServoCount:         1,
	}
	if id != want {
		t.Errorf("identity = %+v, want %+v", id, want)
	}
	if b.backends[0].inits != 2 {
		t.Errorf("INIT did not reinitialize hardware")
	}

	for _, payload := range [][]byte{nil, []byte("hello"), make([]byte, protocol.MaxPayload)} {
		code, resp := dispatch(r, TableBase, CmdPing, 7, payload)
		if code != 0x01 || string(resp) != string(payload) {
			t.Errorf("PING(%d bytes) = %#x, %d bytes", len(payload), code, len(resp))
		}
	}
}

func TestGetLogCommand(t *testing.T) {
	b, r := newCommandBoard(t)

	code, resp := dispatch(r, TableBase, CmdGetLog, 0, nil)
	if code != protocol.MakeCommand(TableBase, CmdGetLog) || len(resp) != 0 {
		t.Fatalf("GET_LOG without log = %#x %q", code, resp)
	}

	b.Log = &LogBuffer{}
	SetDebugWriter(b.Log.Println)
	SetDebugEnabled(true)
	t.Cleanup(func() {
		SetDebugEnabled(false)
		SetDebugWriter(nil)
	})
	ClearTimingRing()

	dispatch(r, TableDigitalIO, CmdDigitalRead, 2, []byte{0})

	var log []byte
	for i := 0; i < 10; i++ {
		_, resp := dispatch(r, TableBase, CmdGetLog, 0, nil)
		if len(resp) == 0 {
			break
		}
		log = append(log, resp...)
	}
	text := string(log)
	if !strings.Contains(text, "[CMD] READ: Invalid channel 2\n") {
		t.Errorf("log missing command error: %q", text)
	}
	if !strings.Contains(text, "[TIMING] CMD_ERR ch=2") {
		t.Errorf("log missing timing event: %q", text)
	}
	if b.Log.Len() != 0 {
		t.Errorf("log not drained, %d bytes left", b.Log.Len())
	}
}

func TestStepperCommands(t *testing.T) {
	b, r := newCommandBoard(t)
	s, _ := b.Stepper(1)

	if _, resp := dispatch(r, TableStepper, CmdIsStopped, 1, nil); string(resp) != "\x01" {
		t.Errorf("IS_STOPPED = %v", resp)
	}

	dispatch(r, TableStepper, CmdSetPosition, 1, encodeArgs(int32(-1234)))
	if _, resp := dispatch(r, TableStepper, CmdGetPosition, 1, nil); string(resp) != string(encodeArgs(int32(-1234))) {
		t.Errorf("GET_POSITION = %v", resp)
	}

	dispatch(r, TableStepper, CmdSetSpeedLimits, 1, encodeArgs(uint32(100), uint32(2000)))
	dispatch(r, TableStepper, CmdSetAcceleration, 1, encodeArgs(uint32(5000)))
	if lo, hi := s.SpeedLimits(); lo != 100 || hi != 2000 || s.Acceleration() != 5000 {
		t.Errorf("limits %d..%d accel %d", lo, hi, s.Acceleration())
	}

	if code, resp := dispatch(r, TableStepper, CmdMoveSteps, 1, encodeArgs(int32(500))); code != 0x10 || string(resp) != "\x01" {
		t.Errorf("MOVE_STEPS = %#x %v", code, resp)
	}
	if _, resp := dispatch(r, TableStepper, CmdMoveSteps, 1, encodeArgs(int32(500))); string(resp) != "\x00" {
		t.Errorf("second MOVE_STEPS = %v, want rejection", resp)
	}
	if _, resp := dispatch(r, TableStepper, CmdIsStopped, 1, nil); string(resp) != "\x00" {
		t.Errorf("IS_STOPPED while moving = %v", resp)
	}

	// Position is only redefined at rest
	dispatch(r, TableStepper, CmdSetPosition, 1, encodeArgs(int32(0)))
	if s.Position() != -1234 {
		t.Errorf("SET_POSITION applied while moving: %d", s.Position())
	}

	if _, resp := dispatch(r, TableStepper, CmdMoveAtSpeed, 1, encodeArgs(int32(-800))); string(resp) != "\x01" {
		t.Errorf("MOVE_AT_SPEED = %v", resp)
	}
	if s.State() != StepperBraking {
		t.Errorf("reversal state = %v, want BRAKING", s.State())
	}

	if b.steppers[0].IsStopped() != true {
		t.Error("command for channel 1 moved channel 0")
	}
}

func TestHomeCommand(t *testing.T) {
	b, r := newCommandBoard(t)
	s, _ := b.Stepper(0)

	if code, _ := dispatch(r, TableStepper, CmdHome, 0, encodeArgs(int32(-500), uint8(10), false)); code != 0x17 {
		t.Fatalf("HOME code = %#x", code)
	}
	if !s.IsHoming() || s.State() != StepperAccelerating {
		t.Errorf("homing=%v state=%v", s.IsHoming(), s.State())
	}

	b.gpio.pins[10] = false
	for i := 0; i < 5 && !s.IsStopped(); i++ {
		runMs(s, b.backends[0], nil)
	}
	if !s.IsStopped() || s.Position() != 0 || s.IsHoming() {
		t.Errorf("after switch: state %v position %d homing %v", s.State(), s.Position(), s.IsHoming())
	}
}

func TestDriverAndIOCommands(t *testing.T) {
	b, r := newCommandBoard(t)

	if code, _ := dispatch(r, TableStepperDrv, CmdDrvSetEnabled, 1, []byte{0}); code != 0x20 {
		t.Errorf("SET_ENABLED code = %#x", code)
	}
	if !b.gpio.pins[7] {
		t.Error("driver 1 enable line not released")
	}

	b.gpio.pins[10] = false
	if code, resp := dispatch(r, TableDigitalIO, CmdDigitalRead, 0, []byte{0}); code != 0x30 || string(resp) != "\x00" {
		t.Errorf("READ 0 = %#x %v", code, resp)
	}
	if _, resp := dispatch(r, TableDigitalIO, CmdDigitalRead, 1, []byte{0}); string(resp) != "\x01" {
		t.Errorf("READ 1 = %v", resp)
	}

	if code, resp := dispatch(r, TableDigitalIO, CmdDigitalWrite, 0, []byte{1, 0}); code != 0x31 || len(resp) != 0 {
		t.Errorf("WRITE = %#x %v", code, resp)
	}
	if !b.gpio.pins[12] {
		t.Error("output not driven high")
	}
}

func TestServoCommands(t *testing.T) {
	b, r := newCommandBoard(t)
	s, _ := b.Servo(0)

	// Preset while disabled
	if _, resp := dispatch(r, TableServo, CmdServoMoveTo, 0, encodeArgs(uint16(900))); string(resp) != "\x01" {
		t.Errorf("MOVE_TO while disabled = %v", resp)
	}
	dispatch(r, TableServo, CmdServoSetDutyLimits, 0, encodeArgs(uint16(100), uint16(500)))
	dispatch(r, TableServo, CmdServoSetEnabled, 0, []byte{1})
	s.Update()
	if s.CurrentDuty() != 300 {
		t.Errorf("duty at 900 = %d, want 300", s.CurrentDuty())
	}

	dispatch(r, TableServo, CmdServoSetSpeedLimits, 0, encodeArgs(uint16(100), uint16(1000)))
	dispatch(r, TableServo, CmdServoSetAccel, 0, encodeArgs(uint16(2000)))
	if _, resp := dispatch(r, TableServo, CmdServoMoveTo, 0, encodeArgs(uint16(1200))); string(resp) != "\x01" {
		t.Fatalf("MOVE_TO = %v", resp)
	}
	if _, resp := dispatch(r, TableServo, CmdServoIsStopped, 0, nil); string(resp) != "\x00" {
		t.Errorf("IS_STOPPED while moving = %v", resp)
	}
	for i := 0; i < 10; i++ {
		s.Update()
	}
	if code, _ := dispatch(r, TableServo, CmdServoStop, 0, nil); code != 0x47 {
		t.Errorf("STOP code = %#x", code)
	}
	_, resp := dispatch(r, TableServo, CmdServoGetPosition, 0, nil)
	want := encodeArgs(s.CurrentPosition())
	if string(resp) != string(want) || s.CurrentPosition() <= 900 || s.CurrentPosition() >= 1200 {
		t.Errorf("GET_POSITION = %v, position %d", resp, s.CurrentPosition())
	}
	if _, resp := dispatch(r, TableServo, CmdServoIsStopped, 0, nil); string(resp) != "\x01" {
		t.Errorf("IS_STOPPED after STOP = %v", resp)
	}
}

func TestGlobalDispatch(t *testing.T) {
	GetGlobalRegistry().Reset()
	defer GetGlobalRegistry().Reset()

	table := &CommandTable{}
	table.Add(0, Command{Name: "ECHO", ArgFormat: "B", Handler: func(ch uint8, args *[]byte, out protocol.OutputBuffer) error {
		v, err := protocol.DecodeUint8(args)
		if err != nil {
			return err
		}
		protocol.EncodeUint8(out, v+ch)
		return nil
	}})
	if err := RegisterTable(5, table); err != nil {
		t.Fatal(err)
	}

	out := protocol.NewScratchOutput()
	req := &protocol.Message{Command: 0x50, Channel: 2, Payload: []byte{40}}
	var handler protocol.MessageHandler = DispatchCommand
	if code := handler(req, out); code != 0x50 || string(out.Result()) != "*" {
		t.Errorf("dispatch = %#x %q", code, out.Result())
	}
}

// Commands from one goroutine and timer dispatch from another must not race
func TestDispatchConcurrentWithTicks(t *testing.T) {
	resetTimers()
	SetTime(0)
	b, r := newCommandBoard(t)
	b.StartTicks()
	defer b.StopTicks()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for now := uint32(100); ; now += 100 {
			select {
			case <-done:
				return
			default:
			}
			SetTime(now)
			ProcessTimers()
		}
	}()

	speeds := []int32{1500, -2500, 0, 3000, 400}
	for i := 0; i < 500; i++ {
		ch := uint8(i % 2)
		code, resp := dispatch(r, TableStepper, CmdMoveAtSpeed, ch, encodeArgs(speeds[i%len(speeds)]))
		if code != 0x11 || string(resp) != "\x01" {
			t.Fatalf("MOVE_AT_SPEED = %#x %v", code, resp)
		}
		if _, resp := dispatch(r, TableStepper, CmdGetPosition, ch, nil); len(resp) != 4 {
			t.Fatalf("GET_POSITION returned %d bytes", len(resp))
		}
		dispatch(r, TableServo, CmdServoIsStopped, 0, nil)
	}
	close(done)
	wg.Wait()

	for ch := uint8(0); ch < 2; ch++ {
		dispatch(r, TableStepper, CmdMoveAtSpeed, ch, encodeArgs(int32(0)))
	}
	now := GetTime()
	for i := 0; i < 100000 && !(b.steppers[0].IsStopped() && b.steppers[1].IsStopped()); i++ {
		now += 100
		SetTime(now)
		ProcessTimers()
	}
	for ch := uint8(0); ch < 2; ch++ {
		if !b.steppers[ch].IsStopped() {
			t.Errorf("stepper %d did not stop: %v", ch, b.steppers[ch].State())
		}
	}
}
