package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a motion event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Channel   uint8  // Axis channel
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtMoveStart   = 1 // stepper move accepted; v1 = distance or speed, v2 = 1 for speed moves
	EvtStateChange = 2 // stepper state; v1 = from, v2 = to
	EvtHomed       = 3 // home switch hit; v1 = position before zeroing
	EvtMoveDone    = 4 // distance move completed; v1 = position
	EvtServoMove   = 5 // servo move accepted; v1 = from, v2 = target
	EvtServoState  = 6 // servo state; v1 = from, v2 = to
	EvtDutyError   = 7 // duty sink write failed; v1 = duty
	EvtCommandErr  = 8 // command rejected; v1 = command byte
)

const (
	TimingRingSize = 32
)

var (
	debugPrintln DebugWriter = func(s string) {}

	// Disabled by default; the target enables it with a LogBuffer writer
	debugEnabled bool

	// Written from tick and command context; both run with interrupts masked
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTiming captures an event in the ring buffer. Never blocks.
func RecordTiming(eventType, channel uint8, clock, value1, value2 uint32) {
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Channel:   channel,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the recorded events, oldest first
func TimingEvents() []TimingEvent {
	events := make([]TimingEvent, 0, TimingRingSize)
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(timingRingHead+i)%TimingRingSize]
		if evt.EventType != 0 {
			events = append(events, evt)
		}
	}
	return events
}

func timingEventName(t uint8) string {
	switch t {
	case EvtMoveStart:
		return "MOVE_START"
	case EvtStateChange:
		return "STATE"
	case EvtHomed:
		return "HOMED"
	case EvtMoveDone:
		return "MOVE_DONE"
	case EvtServoMove:
		return "SERVO_MOVE"
	case EvtServoState:
		return "SERVO_STATE"
	case EvtDutyError:
		return "DUTY_ERR"
	case EvtCommandErr:
		return "CMD_ERR"
	}
	return "UNKNOWN"
}

// DumpTimingRing writes the recorded events through the debug writer, oldest
// first, and clears the ring. Nothing happens while debug output is off.
func DumpTimingRing() {
	if !debugEnabled || debugPrintln == nil {
		return
	}
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + timingEventName(evt.EventType) +
			" ch=" + itoa(int(evt.Channel)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + itoa(int(int32(evt.Value1))) +
			" v2=" + itoa(int(int32(evt.Value2))))
	}
	ClearTimingRing()
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
