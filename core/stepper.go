package core

import (
	"math"
	"sync/atomic"
)

// Stepper timing and limits
const (
	StepTickRateHz     = 10000 // pulse generator rate
	MotionUpdateRateHz = 1000  // profile updater rate
	StepperMaxSpeed    = 60000 // steps/s, at most 6 pulses per stepgen tick
	StepperMaxAccel    = 1 << 30

	DefaultStepperAccel    = 10000
	DefaultStepperMinSpeed = 16
	DefaultStepperMaxSpeed = 2000
)

// StepperState is the motion state of a stepper axis
type StepperState int32

const (
	StepperStopped StepperState = iota
	StepperAccelerating
	StepperCruising
	StepperBraking
)

func (s StepperState) String() string {
	switch s {
	case StepperStopped:
		return "STOPPED"
	case StepperAccelerating:
		return "ACCELERATING"
	case StepperCruising:
		return "CRUISING"
	case StepperBraking:
		return "BRAKING"
	}
	return "UNKNOWN"
}

const (
	notDistanceMove = -1
	notSpeedMove    = -1
	homeDisarmed    = -1
)

// stepperCommand holds the move request. Written from command context only.
type stepperCommand struct {
	distance     atomic.Int32 // magnitude; notDistanceMove for speed moves
	speed        atomic.Int32 // magnitude; notSpeedMove for distance moves, 0 = stop
	dir          atomic.Int32 // +1 or -1
	homePin      atomic.Int32 // homeDisarmed when no switch is watched
	homePolarity atomic.Bool
	accel        atomic.Int32
	minSpeed     atomic.Int32
	maxSpeed     atomic.Int32
}

// stepperStatus holds the motion progress. Written from the tick functions,
// and from command context only when a new move segment starts.
type stepperStatus struct {
	state         atomic.Int32
	speed         atomic.Int32 // steps/s
	speedFrac     atomic.Int32 // 1/MotionUpdateRateHz units
	dir           atomic.Int32
	stepsMoved    atomic.Int32 // progress in the commanded direction
	stepsFrac     atomic.Int32 // 1/StepTickRateHz step units
	brakeDistance atomic.Int32
	position      atomic.Int32
}

// Stepper is one trapezoidal-profile step/dir axis.
//
// StepgenTick and MotionUpdateTick run from the periodic tick timers; the
// other methods run from command context. Every shared field is an atomic,
// and command handlers run with the ticks masked, so a command never
// observes or leaves a half-applied move.
type Stepper struct {
	Channel uint8

	backend StepperBackend
	inputs  GPIODriver

	cmd stepperCommand
	st  stepperStatus
}

// NewStepper creates a stopped axis with default limits. inputs is used to
// sample the home switch and may be nil if homing is never used.
func NewStepper(channel uint8, backend StepperBackend, inputs GPIODriver) *Stepper {
	s := &Stepper{
		Channel: channel,
		backend: backend,
		inputs:  inputs,
	}
	s.cmd.accel.Store(DefaultStepperAccel)
	s.cmd.minSpeed.Store(DefaultStepperMinSpeed)
	s.cmd.maxSpeed.Store(DefaultStepperMaxSpeed)
	s.cmd.distance.Store(notDistanceMove)
	s.cmd.speed.Store(notSpeedMove)
	s.cmd.dir.Store(1)
	s.cmd.homePin.Store(homeDisarmed)
	s.st.dir.Store(1)
	return s
}

// State returns the current motion state
func (s *Stepper) State() StepperState {
	return StepperState(s.st.state.Load())
}

func (s *Stepper) setState(next StepperState) {
	prev := StepperState(s.st.state.Swap(int32(next)))
	if prev != next {
		RecordTiming(EvtStateChange, s.Channel, GetTime(), uint32(prev), uint32(next))
	}
}

// IsStopped reports whether the axis is at rest
func (s *Stepper) IsStopped() bool {
	return s.State() == StepperStopped
}

// Position returns the absolute position in steps
func (s *Stepper) Position() int32 {
	return s.st.position.Load()
}

// Speed returns the instantaneous speed magnitude in steps/s
func (s *Stepper) Speed() int32 {
	return s.st.speed.Load()
}

// Direction returns the direction of travel, +1 or -1
func (s *Stepper) Direction() int32 {
	return s.st.dir.Load()
}

// SetPosition redefines the current position. Only allowed while stopped.
func (s *Stepper) SetPosition(position int32) bool {
	if !s.IsStopped() {
		return false
	}
	s.st.position.Store(position)
	return true
}

// SetSpeedLimits sets the floor and ceiling speeds. Values above
// StepperMaxSpeed are clamped; min > max is ignored.
func (s *Stepper) SetSpeedLimits(minSpeed, maxSpeed uint32) bool {
	minSpeed = min(minSpeed, StepperMaxSpeed)
	maxSpeed = min(maxSpeed, StepperMaxSpeed)
	if minSpeed > maxSpeed {
		return false
	}
	s.cmd.minSpeed.Store(int32(minSpeed))
	s.cmd.maxSpeed.Store(int32(maxSpeed))
	return true
}

// SpeedLimits returns the configured floor and ceiling speeds
func (s *Stepper) SpeedLimits() (minSpeed, maxSpeed uint32) {
	return uint32(s.cmd.minSpeed.Load()), uint32(s.cmd.maxSpeed.Load())
}

// SetAcceleration sets the acceleration in steps/s²
func (s *Stepper) SetAcceleration(accel uint32) {
	s.cmd.accel.Store(int32(min(accel, StepperMaxAccel)))
}

// Acceleration returns the configured acceleration
func (s *Stepper) Acceleration() uint32 {
	return uint32(s.cmd.accel.Load())
}

// splitSigned returns magnitude and direction (+1/-1) of v
func splitSigned(v int32) (int32, int32) {
	if v >= 0 {
		return v, 1
	}
	if v == math.MinInt32 {
		return math.MaxInt32, -1
	}
	return -v, -1
}

// MoveSteps starts a relative move of distance steps from standstill.
// Returns false if the axis is moving. A zero distance is accepted and does
// nothing.
func (s *Stepper) MoveSteps(distance int32) bool {
	if !s.IsStopped() {
		return false
	}
	if distance == 0 {
		return true
	}
	mag, dir := splitSigned(distance)

	s.cmd.homePin.Store(homeDisarmed)
	s.cmd.distance.Store(mag)
	s.cmd.speed.Store(notSpeedMove)
	s.cmd.dir.Store(dir)

	s.st.dir.Store(dir)
	s.st.speed.Store(s.cmd.minSpeed.Load())
	s.st.speedFrac.Store(0)
	s.st.stepsMoved.Store(0)
	s.st.stepsFrac.Store(0)
	// Recomputed once the ceiling is reached
	s.st.brakeDistance.Store(mag / 2)

	RecordTiming(EvtMoveStart, s.Channel, GetTime(), uint32(distance), 0)
	s.setState(StepperAccelerating)
	return true
}

// MoveAtSpeed runs the axis continuously at speed steps/s (sign is
// direction). Nonzero speeds are clamped to the configured limits. Zero
// brakes to a stop. Accepted in every state; the transition depends on the
// current motion.
func (s *Stepper) MoveAtSpeed(speed int32) bool {
	mag, dir := splitSigned(speed)
	if mag != 0 {
		mag = max(mag, s.cmd.minSpeed.Load())
		mag = min(mag, s.cmd.maxSpeed.Load())
	}
	state := s.State()
	if mag == 0 && state == StepperStopped {
		return true
	}

	s.cmd.homePin.Store(homeDisarmed)
	s.cmd.distance.Store(notDistanceMove)
	s.cmd.speed.Store(mag)
	s.cmd.dir.Store(dir)

	s.st.stepsMoved.Store(0)
	s.st.stepsFrac.Store(0)
	RecordTiming(EvtMoveStart, s.Channel, GetTime(), uint32(speed), 1)

	if state == StepperStopped {
		s.st.dir.Store(dir)
		s.st.speed.Store(s.cmd.minSpeed.Load())
		s.st.speedFrac.Store(0)
		s.setState(StepperAccelerating)
		return true
	}

	current := s.st.speed.Load()
	switch {
	case current == mag && s.st.dir.Load() == dir:
		s.setState(StepperCruising)
	case s.st.dir.Load() != dir, current > mag:
		s.setState(StepperBraking)
	default:
		s.setState(StepperAccelerating)
	}
	return true
}

// Halt stops immediately without a ramp and keeps the position. Used when
// the board is reinitialized.
func (s *Stepper) Halt() {
	s.cmd.homePin.Store(homeDisarmed)
	s.cmd.distance.Store(notDistanceMove)
	s.cmd.speed.Store(notSpeedMove)
	s.st.speed.Store(0)
	s.st.speedFrac.Store(0)
	s.setState(StepperStopped)
	s.backend.Stop()
}

// Home runs toward a switch at speed and stops, zeroing the position, when
// pin reads activeLevel.
func (s *Stepper) Home(speed int32, pin GPIOPin, activeLevel bool) bool {
	if speed == 0 {
		return false
	}
	s.MoveAtSpeed(speed)
	s.cmd.homePolarity.Store(activeLevel)
	s.cmd.homePin.Store(int32(pin))
	return true
}

// IsHoming reports whether a home switch is being watched
func (s *Stepper) IsHoming() bool {
	return s.cmd.homePin.Load() != homeDisarmed
}

// StepgenTick emits the pulses due in this step tick
func (s *Stepper) StepgenTick() {
	if s.IsStopped() {
		return
	}
	dir := s.st.dir.Load()
	s.backend.SetDirection(dir < 0)

	frac := s.st.stepsFrac.Load() + s.st.speed.Load()
	moved := s.st.stepsMoved.Load()
	distance := s.cmd.distance.Load()
	progress := dir * s.cmd.dir.Load()

	for frac >= StepTickRateHz || frac <= -StepTickRateHz {
		s.backend.Step()
		if frac > 0 {
			frac -= StepTickRateHz
		} else {
			frac += StepTickRateHz
		}
		moved += progress
		position := s.st.position.Add(dir)
		if distance > 0 && moved >= distance {
			s.st.speed.Store(0)
			s.setState(StepperStopped)
			s.backend.Stop()
			RecordTiming(EvtMoveDone, s.Channel, GetTime(), uint32(position), 0)
			break
		}
	}
	s.st.stepsFrac.Store(frac)
	s.st.stepsMoved.Store(moved)
}

// profileStep is one phase of the profile update. A tick may run
// accelerate then cruise, replacing a switch fallthrough.
type profileStep uint8

const (
	profileDone profileStep = iota
	profileAccelerate
	profileCruise
	profileBrake
)

// MotionUpdateTick advances the speed profile by one update period
func (s *Stepper) MotionUpdateTick() {
	step := profileDone
	switch s.State() {
	case StepperAccelerating:
		step = profileAccelerate
	case StepperCruising:
		step = profileCruise
	case StepperBraking:
		step = profileBrake
	}
	for step != profileDone {
		step = s.runProfileStep(step)
	}
}

func (s *Stepper) runProfileStep(step profileStep) profileStep {
	switch step {
	case profileAccelerate:
		s.accelerate()
		// Switch and brake checks apply while accelerating as well
		return profileCruise
	case profileCruise:
		s.cruise()
	case profileBrake:
		s.brake()
	}
	return profileDone
}

// speedIncrement integrates acceleration for one update period and returns
// the whole steps/s gained
func (s *Stepper) speedIncrement() int32 {
	frac := s.st.speedFrac.Load() + s.cmd.accel.Load()
	s.st.speedFrac.Store(frac % MotionUpdateRateHz)
	return frac / MotionUpdateRateHz
}

func (s *Stepper) accelerate() {
	speed := s.st.speed.Load() + s.speedIncrement()
	target := s.cmd.speed.Load()
	maxSpeed := s.cmd.maxSpeed.Load()

	switch {
	case target > 0 && speed >= target:
		speed = target
		s.st.speedFrac.Store(0)
		s.st.speed.Store(speed)
		s.setState(StepperCruising)
		return
	case target == notSpeedMove && speed >= maxSpeed:
		speed = maxSpeed
		s.st.speedFrac.Store(0)
		// Braking takes as many steps as accelerating did
		s.st.brakeDistance.Store(s.cmd.distance.Load() - s.st.stepsMoved.Load())
		s.st.speed.Store(speed)
		s.setState(StepperCruising)
		return
	case speed > maxSpeed:
		speed = maxSpeed
	}
	s.st.speed.Store(speed)
}

func (s *Stepper) cruise() {
	if pin := s.cmd.homePin.Load(); pin != homeDisarmed && s.inputs != nil {
		if s.inputs.ReadPin(GPIOPin(pin)) == s.cmd.homePolarity.Load() {
			prev := s.st.position.Load()
			s.st.speed.Store(0)
			s.setState(StepperStopped)
			s.backend.Stop()
			s.st.position.Store(0)
			s.cmd.homePin.Store(homeDisarmed)
			RecordTiming(EvtHomed, s.Channel, GetTime(), uint32(prev), 0)
			return
		}
	}
	if s.cmd.distance.Load() > 0 && s.st.stepsMoved.Load() >= s.st.brakeDistance.Load() {
		s.setState(StepperBraking)
	}
}

func (s *Stepper) brake() {
	speed := s.st.speed.Load() - s.speedIncrement()
	target := s.cmd.speed.Load()
	minSpeed := s.cmd.minSpeed.Load()
	moveDir := s.cmd.dir.Load()
	dir := s.st.dir.Load()

	// Slowing to a lower speed in the same direction
	if target > 0 && dir == moveDir && speed <= target {
		s.st.speedFrac.Store(0)
		s.st.speed.Store(target)
		s.setState(StepperCruising)
		return
	}
	if speed > minSpeed {
		s.st.speed.Store(speed)
		return
	}

	s.st.speedFrac.Store(0)
	switch {
	case target > 0 && dir != moveDir:
		// Reverse at the floor speed; the pending pulse fraction now
		// counts toward the opposite direction
		s.st.speed.Store(minSpeed)
		s.st.dir.Store(moveDir)
		s.st.stepsFrac.Store(-s.st.stepsFrac.Load())
		s.setState(StepperAccelerating)
	case target == 0:
		s.st.speed.Store(0)
		s.setState(StepperStopped)
		s.backend.Stop()
	default:
		// Distance move that ran out of braking early: crawl to the target
		s.st.speed.Store(minSpeed)
		s.setState(StepperCruising)
	}
}
