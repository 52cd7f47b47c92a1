package protocol

import "sync/atomic"

// MessageHandler handles one decoded request. It writes the response payload
// to out and returns the response command byte (request command, with
// CommandErrorFlag set on failure).
type MessageHandler func(req *Message, out OutputBuffer) uint8

// TransmitFunc sends one encoded frame, delimiter included
type TransmitFunc func(frame []byte)

// TransportStats counts dropped traffic
type TransportStats struct {
	Received       uint32
	Processed      uint32
	FramingErrors  uint32
	CRCErrors      uint32
	ShortFrames    uint32
	OtherAddresses uint32
}

// Transport assembles bus frames byte by byte and answers the ones addressed
// to this device. A single decoded message is queued at a time; it is
// dispatched by ProcessQueued from the main loop.
type Transport struct {
	address uint8

	rx    [MaxEncodedSize]byte
	rxPos int
	// set after an overrun; bytes are dropped until the next delimiter
	discard bool

	decoded   [MaxMessageSize]byte
	queued    Message
	hasQueued bool

	scratch ScratchOutput
	tx      [MaxFrameSize]byte

	handler       MessageHandler
	transmit      TransmitFunc
	resetCallback func()

	received       atomic.Uint32
	processed      atomic.Uint32
	framingErrors  atomic.Uint32
	crcErrors      atomic.Uint32
	shortFrames    atomic.Uint32
	otherAddresses atomic.Uint32
}

// NewTransport creates a receiver for the given bus address
func NewTransport(address uint8, handler MessageHandler, transmit TransmitFunc) *Transport {
	return &Transport{
		address:  address,
		handler:  handler,
		transmit: transmit,
	}
}

// Receive feeds every available byte through the frame assembler and
// dispatches each message as soon as it completes.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	for _, c := range data {
		t.ProcessByte(c)
		t.ProcessQueued()
	}
	input.Pop(len(data))
}

// ProcessByte appends one received byte. On a delimiter the assembled frame
// is decoded and, if valid and addressed to us, queued.
func (t *Transport) ProcessByte(c byte) {
	if c != FrameDelimiter {
		if t.discard {
			return
		}
		if t.rxPos >= len(t.rx) {
			t.framingErrors.Add(1)
			t.rxPos = 0
			t.discard = true
			return
		}
		t.rx[t.rxPos] = c
		t.rxPos++
		return
	}

	frame := t.rx[:t.rxPos]
	t.rxPos = 0
	if t.discard {
		t.discard = false
		return
	}
	if len(frame) < MinMessageSize {
		// Also covers bare delimiters used to resync the line
		if len(frame) > 0 {
			t.shortFrames.Add(1)
		}
		return
	}

	n, err := COBSDecode(t.decoded[:], frame)
	if err != nil {
		t.framingErrors.Add(1)
		return
	}
	if n < MinMessageSize {
		t.shortFrames.Add(1)
		return
	}
	if t.decoded[0] != t.address {
		t.otherAddresses.Add(1)
		return
	}
	var msg Message
	if err := msg.Unmarshal(t.decoded[:n]); err != nil {
		if err == ErrCRCMismatch {
			t.crcErrors.Add(1)
		} else {
			t.framingErrors.Add(1)
		}
		return
	}
	t.received.Add(1)
	t.queued = msg
	t.hasQueued = true
}

// ProcessQueued dispatches the queued message, if any, and transmits the
// response. Returns true when a message was handled.
func (t *Transport) ProcessQueued() bool {
	if !t.hasQueued {
		return false
	}
	t.hasQueued = false
	req := &t.queued

	t.scratch.Reset()
	cmd := req.Command | CommandErrorFlag
	if t.handler != nil {
		cmd = t.dispatch(req)
	}
	if t.scratch.Overflowed() {
		t.scratch.Reset()
		t.scratch.Output([]byte("Response too long"))
		cmd = req.Command | CommandErrorFlag
	}

	resp := Message{
		Address: t.address,
		Command: cmd,
		Channel: req.Channel,
		Payload: t.scratch.Result(),
	}
	frame, err := EncodeFrame(&resp, t.tx[:])
	if err != nil {
		return true
	}
	t.processed.Add(1)
	if t.transmit != nil {
		t.transmit(frame)
	}
	return true
}

// dispatch runs the handler, turning a panic into an error response
func (t *Transport) dispatch(req *Message) (cmd uint8) {
	defer func() {
		if r := recover(); r != nil {
			t.scratch.Reset()
			t.scratch.Output([]byte("Internal error"))
			cmd = req.Command | CommandErrorFlag
		}
	}()
	return t.handler(req, &t.scratch)
}

// Reset drops any partial or queued frame (USB disconnect/reconnect)
func (t *Transport) Reset() {
	t.rxPos = 0
	t.discard = false
	t.hasQueued = false
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback to be called from Reset
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// Stats returns a snapshot of the receive counters
func (t *Transport) Stats() TransportStats {
	return TransportStats{
		Received:       t.received.Load(),
		Processed:      t.processed.Load(),
		FramingErrors:  t.framingErrors.Load(),
		CRCErrors:      t.crcErrors.Load(),
		ShortFrames:    t.shortFrames.Load(),
		OtherAddresses: t.otherAddresses.Load(),
	}
}
