package core

import "sync/atomic"

// Servo timing and limits
const (
	ServoUpdateRateHz = 100
	ServoMaxPosition  = 1800 // tenths of a degree

	DefaultServoMaxSpeed = 3750 // tenths of a degree per second
	DefaultServoMinSpeed = 50
	DefaultServoAccel    = 100
	DefaultServoMinDuty  = 102 // PCA9685 counts at 50 Hz, about 0.5 ms
	DefaultServoMaxDuty  = 512 // about 2.5 ms
)

// ServoState is the motion state of a servo axis
type ServoState int32

const (
	ServoIdle ServoState = iota
	ServoAccelerating
	ServoCruising
	ServoBraking
	ServoDisabled
)

func (s ServoState) String() string {
	switch s {
	case ServoIdle:
		return "IDLE"
	case ServoAccelerating:
		return "ACCELERATING"
	case ServoCruising:
		return "CRUISING"
	case ServoBraking:
		return "BRAKING"
	case ServoDisabled:
		return "DISABLED"
	}
	return "UNKNOWN"
}

func (s ServoState) moving() bool {
	return s == ServoAccelerating || s == ServoCruising || s == ServoBraking
}

// Servo is one position-controlled PWM axis with a trapezoidal profile.
// Update runs from the servo tick; everything else from command context.
type Servo struct {
	Channel uint8

	sink DutySink
	// PWM output index on the sink
	output uint8

	state atomic.Int32

	minSpeed atomic.Int32
	maxSpeed atomic.Int32
	accel    atomic.Int32
	minDuty  atomic.Int32
	maxDuty  atomic.Int32

	startPos  atomic.Int32
	pos       atomic.Int32
	posFrac   atomic.Int32
	target    atomic.Int32
	brakePos  atomic.Int32
	speed     atomic.Int32
	speedFrac atomic.Int32
	dir       atomic.Int32
	duty      atomic.Int32

	// last duty written to the sink, -1 before the first write; tick only
	sentDuty int32
}

// NewServo creates a disabled servo driving output on sink
func NewServo(channel uint8, sink DutySink, output uint8) *Servo {
	s := &Servo{
		Channel:  channel,
		sink:     sink,
		output:   output,
		sentDuty: -1,
	}
	s.state.Store(int32(ServoDisabled))
	s.minSpeed.Store(DefaultServoMinSpeed)
	s.maxSpeed.Store(DefaultServoMaxSpeed)
	s.accel.Store(DefaultServoAccel)
	s.minDuty.Store(DefaultServoMinDuty)
	s.maxDuty.Store(DefaultServoMaxDuty)
	return s
}

// State returns the current motion state
func (s *Servo) State() ServoState {
	return ServoState(s.state.Load())
}

func (s *Servo) setState(next ServoState) {
	prev := ServoState(s.state.Swap(int32(next)))
	if prev != next {
		RecordTiming(EvtServoState, s.Channel, GetTime(), uint32(prev), uint32(next))
	}
}

// IsStopped reports whether the servo is idle or disabled
func (s *Servo) IsStopped() bool {
	st := s.State()
	return st == ServoIdle || st == ServoDisabled
}

// CurrentPosition returns the position in tenths of a degree
func (s *Servo) CurrentPosition() uint16 {
	return uint16(s.pos.Load())
}

// CurrentDuty returns the duty computed by the last Update
func (s *Servo) CurrentDuty() uint16 {
	return uint16(s.duty.Load())
}

// MoveTo starts a move to position (clamped to ServoMaxPosition). While
// disabled the position is preset without motion. Returns false if a move is
// already in progress.
func (s *Servo) MoveTo(position uint16) bool {
	target := int32(min(position, ServoMaxPosition))
	state := s.State()
	if state == ServoDisabled {
		s.pos.Store(target)
		s.target.Store(target)
		return true
	}
	if state != ServoIdle {
		return false
	}
	pos := s.pos.Load()
	if target == pos {
		return true
	}

	delta := target - pos
	dir := int32(1)
	if delta < 0 {
		dir = -1
	}
	s.target.Store(target)
	s.startPos.Store(pos)
	s.brakePos.Store(pos + delta/2)
	s.dir.Store(dir)
	s.speed.Store(s.minSpeed.Load())
	s.speedFrac.Store(0)
	s.posFrac.Store(0)

	RecordTiming(EvtServoMove, s.Channel, GetTime(), uint32(pos), uint32(target))
	s.setState(ServoAccelerating)
	return true
}

// SetSpeedLimits sets floor and ceiling speeds; min > max is ignored
func (s *Servo) SetSpeedLimits(minSpeed, maxSpeed uint16) bool {
	if minSpeed > maxSpeed {
		return false
	}
	s.minSpeed.Store(int32(minSpeed))
	s.maxSpeed.Store(int32(maxSpeed))
	return true
}

// SetAcceleration sets the acceleration in tenths of a degree per s²
func (s *Servo) SetAcceleration(accel uint16) {
	s.accel.Store(int32(accel))
}

// SetDutyCycleLimits sets the duty at 0 and at ServoMaxPosition; min > max is ignored
func (s *Servo) SetDutyCycleLimits(minDuty, maxDuty uint16) bool {
	if minDuty > maxDuty {
		return false
	}
	s.minDuty.Store(int32(minDuty))
	s.maxDuty.Store(int32(maxDuty))
	return true
}

// SetEnabled enables or disables the output. Disabling stops motion and
// turns the pulse off; enabling resumes from the current position.
func (s *Servo) SetEnabled(enabled bool) {
	if enabled {
		if s.State() == ServoDisabled {
			s.setState(ServoIdle)
		}
		return
	}
	s.halt()
	s.setState(ServoDisabled)
	s.duty.Store(0)
}

// StopMotion halts at the current position. A disabled servo stays disabled.
func (s *Servo) StopMotion() {
	s.halt()
	if s.State() != ServoDisabled {
		s.setState(ServoIdle)
	}
}

func (s *Servo) halt() {
	s.speed.Store(0)
	s.speedFrac.Store(0)
	s.posFrac.Store(0)
	s.dir.Store(0)
}

// Update advances the servo by one tick and pushes the duty if it changed
func (s *Servo) Update() {
	state := s.State()

	// Integrate position
	frac := s.posFrac.Load() + s.speed.Load()
	if frac >= ServoUpdateRateHz {
		s.pos.Add(frac / ServoUpdateRateHz * s.dir.Load())
		frac %= ServoUpdateRateHz
	}
	s.posFrac.Store(frac)

	// Arrival, in either direction
	if state.moving() {
		pos, target := s.pos.Load(), s.target.Load()
		dir := s.dir.Load()
		if (dir > 0 && pos >= target) || (dir < 0 && pos <= target) {
			s.pos.Store(target)
			s.halt()
			s.setState(ServoIdle)
			state = ServoIdle
		}
	}

	s.updateDuty(state)

	step := profileDone
	switch state {
	case ServoAccelerating:
		step = profileAccelerate
	case ServoCruising:
		step = profileCruise
	case ServoBraking:
		step = profileBrake
	}
	for step != profileDone {
		step = s.runProfileStep(step)
	}
}

func (s *Servo) updateDuty(state ServoState) {
	duty := int32(0)
	if state != ServoDisabled {
		lo, hi := s.minDuty.Load(), s.maxDuty.Load()
		duty = lo + (hi-lo)*s.pos.Load()/ServoMaxPosition
		duty = max(lo, min(hi, duty))
	}
	s.duty.Store(duty)

	if duty == s.sentDuty || s.sink == nil {
		return
	}
	if err := s.sink.SetDuty(s.output, uint16(duty)); err != nil {
		// Retried on the next tick
		RecordTiming(EvtDutyError, s.Channel, GetTime(), uint32(duty), 0)
		return
	}
	s.sentDuty = duty
}

func (s *Servo) runProfileStep(step profileStep) profileStep {
	switch step {
	case profileAccelerate:
		s.accelerate()
		return profileCruise
	case profileCruise:
		s.cruise()
	case profileBrake:
		s.brake()
	}
	return profileDone
}

// speedIncrement integrates acceleration over one tick
func (s *Servo) speedIncrement() int32 {
	frac := s.speedFrac.Load() + s.accel.Load()
	s.speedFrac.Store(frac % ServoUpdateRateHz)
	return frac / ServoUpdateRateHz
}

func (s *Servo) accelerate() {
	speed := s.speed.Load() + s.speedIncrement()
	if maxSpeed := s.maxSpeed.Load(); speed > maxSpeed {
		speed = maxSpeed
		// Brake as far from the target as the ramp up took
		travelled := s.pos.Load() - s.startPos.Load()
		s.brakePos.Store(s.target.Load() - travelled)
		s.speed.Store(speed)
		s.setState(ServoCruising)
		return
	}
	s.speed.Store(speed)
}

func (s *Servo) cruise() {
	pos, brake := s.pos.Load(), s.brakePos.Load()
	dir := s.dir.Load()
	if (dir > 0 && pos >= brake) || (dir < 0 && pos <= brake) {
		s.setState(ServoBraking)
	}
}

func (s *Servo) brake() {
	speed := s.speed.Load() - s.speedIncrement()
	s.speed.Store(max(speed, s.minSpeed.Load()))
}
