package core

// DutySink receives servo PWM duty values, e.g. one PCA9685 output.
// Duty is in the sink's native counts; 0 turns the output off.
type DutySink interface {
	SetDuty(channel uint8, duty uint16) error
}

// DeferredDutyChannels is the number of outputs a DeferredDutySink can hold
const DeferredDutyChannels = 16

// DeferredDutySink holds duty writes made from tick context until Flush
// sends them to the wrapped sink. It keeps bus transfers such as PCA9685 I2C
// writes out of the timer interrupt.
type DeferredDutySink struct {
	sink    DutySink
	pending [DeferredDutyChannels]uint16
	dirty   uint16
}

func NewDeferredDutySink(sink DutySink) *DeferredDutySink {
	return &DeferredDutySink{sink: sink}
}

// SetDuty records the latest duty for channel; callers hold the interrupt mask
func (d *DeferredDutySink) SetDuty(channel uint8, duty uint16) error {
	if channel >= DeferredDutyChannels {
		return ErrInvalidChannel
	}
	d.pending[channel] = duty
	d.dirty |= 1 << channel
	return nil
}

// Flush writes every pending duty to the wrapped sink. Channels whose write
// fails stay pending for the next Flush; the first error is returned.
func (d *DeferredDutySink) Flush() error {
	state := disableInterrupts()
	dirty := d.dirty
	pending := d.pending
	d.dirty = 0
	restoreInterrupts(state)

	var firstErr error
	var failed uint16
	for ch := uint8(0); dirty != 0; ch++ {
		bit := uint16(1) << ch
		if dirty&bit == 0 {
			continue
		}
		dirty &^= bit
		if err := d.sink.SetDuty(ch, pending[ch]); err != nil {
			failed |= bit
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if failed != 0 {
		state = disableInterrupts()
		d.dirty |= failed
		restoreInterrupts(state)
	}
	return firstErr
}
