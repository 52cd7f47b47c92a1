package core

import "errors"

// MockGPIODriver is a test implementation of GPIODriver
type MockGPIODriver struct {
	pins    map[GPIOPin]bool
	outputs map[GPIOPin]bool
	pullups map[GPIOPin]bool
	failPin GPIOPin
	fail    bool
}

func NewMockGPIODriver() *MockGPIODriver {
	return &MockGPIODriver{
		pins:    make(map[GPIOPin]bool),
		outputs: make(map[GPIOPin]bool),
		pullups: make(map[GPIOPin]bool),
	}
}

var errMockPin = errors.New("mock pin failure")

func (m *MockGPIODriver) ConfigureOutput(pin GPIOPin) error {
	if m.fail && pin == m.failPin {
		return errMockPin
	}
	m.outputs[pin] = true
	m.pins[pin] = false
	return nil
}

func (m *MockGPIODriver) ConfigureInputPullUp(pin GPIOPin) error {
	if m.fail && pin == m.failPin {
		return errMockPin
	}
	m.pullups[pin] = true
	m.pins[pin] = true
	return nil
}

func (m *MockGPIODriver) SetPin(pin GPIOPin, value bool) error {
	m.pins[pin] = value
	return nil
}

func (m *MockGPIODriver) ReadPin(pin GPIOPin) bool {
	return m.pins[pin]
}

// MockStepperBackend counts pulses and records the direction line
type MockStepperBackend struct {
	pulses    int
	reverse   bool
	stops     int
	inits     int
	lastBatch int
	maxBatch  int
}

func (m *MockStepperBackend) Init(stepPin, dirPin GPIOPin, invertStep, invertDir bool) error {
	m.inits++
	return nil
}

func (m *MockStepperBackend) Step() {
	m.pulses++
	m.lastBatch++
}

func (m *MockStepperBackend) SetDirection(reverse bool) {
	m.reverse = reverse
	m.lastBatch = 0
}

func (m *MockStepperBackend) Stop() {
	m.stops++
}

func (m *MockStepperBackend) GetName() string {
	return "mock"
}

// endBatch records the pulses emitted since the last SetDirection
func (m *MockStepperBackend) endBatch() {
	if m.lastBatch > m.maxBatch {
		m.maxBatch = m.lastBatch
	}
}

// MockDutySink records every duty write per channel
type MockDutySink struct {
	writes map[uint8][]uint16
	fail   bool
}

func NewMockDutySink() *MockDutySink {
	return &MockDutySink{writes: make(map[uint8][]uint16)}
}

func (m *MockDutySink) SetDuty(channel uint8, duty uint16) error {
	if m.fail {
		return errMockPin
	}
	m.writes[channel] = append(m.writes[channel], duty)
	return nil
}

func (m *MockDutySink) last(channel uint8) (uint16, bool) {
	w := m.writes[channel]
	if len(w) == 0 {
		return 0, false
	}
	return w[len(w)-1], true
}
