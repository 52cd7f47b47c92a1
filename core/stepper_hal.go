package core

// MinStepPulseNs is the minimum high and low time of a step pulse
const MinStepPulseNs = 200

// StepperBackend drives the step and direction lines of one driver.
// Implementations can use GPIO, PIO, or other methods.
type StepperBackend interface {
	// Init configures both pins as outputs, idle
	Init(stepPin, dirPin GPIOPin, invertStep, invertDir bool) error

	// Step emits one pulse. The line is held active for at least
	// MinStepPulseNs and idle for at least MinStepPulseNs before returning,
	// so consecutive calls within one tick stay within driver timing.
	Step()

	// SetDirection sets the direction output (true = reverse).
	// Called before every batch of pulses, so it must be cheap when unchanged.
	SetDirection(reverse bool)

	// Stop leaves the step line idle
	Stop()

	GetName() string
}

// PinStepperBackend toggles step and direction through a GPIODriver.
// Delay holds the line for the pulse width; nil means the driver's own
// write latency is enough.
type PinStepperBackend struct {
	GPIO  GPIODriver
	Delay func()

	stepPin    GPIOPin
	dirPin     GPIOPin
	invertStep bool
	invertDir  bool
	reverse    bool
	dirValid   bool
}

// NewPinStepperBackend creates a backend on the given GPIO driver
func NewPinStepperBackend(gpio GPIODriver, delay func()) *PinStepperBackend {
	return &PinStepperBackend{GPIO: gpio, Delay: delay}
}

func (b *PinStepperBackend) Init(stepPin, dirPin GPIOPin, invertStep, invertDir bool) error {
	b.stepPin, b.dirPin = stepPin, dirPin
	b.invertStep, b.invertDir = invertStep, invertDir
	b.dirValid = false
	if err := b.GPIO.ConfigureOutput(stepPin); err != nil {
		return err
	}
	if err := b.GPIO.ConfigureOutput(dirPin); err != nil {
		return err
	}
	_ = b.GPIO.SetPin(stepPin, invertStep)
	_ = b.GPIO.SetPin(dirPin, invertDir)
	return nil
}

func (b *PinStepperBackend) Step() {
	_ = b.GPIO.SetPin(b.stepPin, !b.invertStep)
	if b.Delay != nil {
		b.Delay()
	}
	_ = b.GPIO.SetPin(b.stepPin, b.invertStep)
	if b.Delay != nil {
		b.Delay()
	}
}

func (b *PinStepperBackend) SetDirection(reverse bool) {
	if b.dirValid && reverse == b.reverse {
		return
	}
	b.reverse = reverse
	b.dirValid = true
	_ = b.GPIO.SetPin(b.dirPin, reverse != b.invertDir)
}

func (b *PinStepperBackend) Stop() {
	_ = b.GPIO.SetPin(b.stepPin, b.invertStep)
}

func (b *PinStepperBackend) GetName() string {
	return "gpio"
}
