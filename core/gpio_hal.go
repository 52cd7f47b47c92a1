package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the pin interface the board uses for digital I/O, the
// stepper enable line and home switch sampling. Targets provide it.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a push-pull output, initially low
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as an input with pull-up
	ConfigureInputPullUp(pin GPIOPin) error

	// SetPin drives an output high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// ReadPin samples a pin. Called from tick context, must not block.
	ReadPin(pin GPIOPin) bool
}
