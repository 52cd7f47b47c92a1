package protocol

import (
	"bytes"
	"testing"
)

// echoHandler answers every request with its own payload
func echoHandler(req *Message, out OutputBuffer) uint8 {
	out.Output(req.Payload)
	return req.Command
}

type captured struct {
	frames [][]byte
}

func (c *captured) transmit(frame []byte) {
	c.frames = append(c.frames, append([]byte(nil), frame...))
}

func (c *captured) decode(t *testing.T, i int) *Message {
	t.Helper()
	if i >= len(c.frames) {
		t.Fatalf("expected at least %d responses, got %d", i+1, len(c.frames))
	}
	m := &Message{}
	if err := DecodeFrame(c.frames[i], make([]byte, MaxMessageSize), m); err != nil {
		t.Fatalf("response %d does not decode: %v", i, err)
	}
	return m
}

func encode(t *testing.T, m Message) []byte {
	t.Helper()
	frame, err := EncodeFrame(&m, make([]byte, MaxFrameSize))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	return frame
}

func TestTransportAnswersOwnAddress(t *testing.T) {
	var out captured
	tr := NewTransport(2, echoHandler, out.transmit)

	frame := encode(t, Message{Address: 2, Command: 0x01, Channel: 5, Payload: []byte("hi\x00there")})
	tr.Receive(NewSliceInputBuffer(frame))

	resp := out.decode(t, 0)
	if resp.Address != 2 || resp.Command != 0x01 || resp.Channel != 5 {
		t.Errorf("unexpected response header %+v", resp)
	}
	if string(resp.Payload) != "hi\x00there" {
		t.Errorf("payload = %q", resp.Payload)
	}
	if s := tr.Stats(); s.Received != 1 || s.Processed != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTransportDropsBadFrames(t *testing.T) {
	good := encode(t, Message{Address: 0, Command: 0x01, Payload: []byte{1}})

	corrupt := append([]byte(nil), good...)
	corrupt[2] ^= 0x01
	if corrupt[2] == 0 {
		corrupt[2] = 0x55
	}

	tests := []struct {
		name  string
		input []byte
		check func(TransportStats) bool
	}{
		{"other address", encode(t, Message{Address: 7, Command: 0x01}), func(s TransportStats) bool { return s.OtherAddresses == 1 }},
		{"short frame", []byte{0x02, 0x11, 0x00}, func(s TransportStats) bool { return s.ShortFrames == 1 }},
		{"crc error", corrupt, func(s TransportStats) bool { return s.CRCErrors+s.FramingErrors == 1 }},
		{"framing error", []byte{0x20, 1, 2, 3, 4, 5, 6, 7, 8, 0x00}, func(s TransportStats) bool { return s.FramingErrors == 1 }},
		{"bare delimiters", []byte{0, 0, 0}, func(s TransportStats) bool { return s == TransportStats{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out captured
			tr := NewTransport(0, echoHandler, out.transmit)
			tr.Receive(NewSliceInputBuffer(tt.input))
			if len(out.frames) != 0 {
				t.Errorf("expected no response, got %d", len(out.frames))
			}
			if s := tr.Stats(); !tt.check(s) {
				t.Errorf("unexpected stats %+v", s)
			}

			// Receiver recovers for the next frame
			tr.Receive(NewSliceInputBuffer(good))
			if len(out.frames) != 1 {
				t.Errorf("expected recovery, got %d responses", len(out.frames))
			}
		})
	}
}

func TestTransportOverrunResyncs(t *testing.T) {
	var out captured
	tr := NewTransport(0, echoHandler, out.transmit)

	junk := bytes.Repeat([]byte{0x42}, MaxEncodedSize+10)
	junk = append(junk, 0x00)
	tr.Receive(NewSliceInputBuffer(junk))
	if tr.Stats().FramingErrors != 1 {
		t.Errorf("expected one framing error, got %+v", tr.Stats())
	}

	tr.Receive(NewSliceInputBuffer(encode(t, Message{Address: 0, Command: 0x01})))
	if len(out.frames) != 1 {
		t.Fatalf("expected a response after resync, got %d", len(out.frames))
	}
}

func TestTransportSplitAcrossReads(t *testing.T) {
	var out captured
	tr := NewTransport(0, echoHandler, out.transmit)
	frame := encode(t, Message{Address: 0, Command: 0x01, Payload: []byte{9, 8, 7}})

	for _, c := range frame {
		tr.Receive(NewSliceInputBuffer([]byte{c}))
	}
	resp := out.decode(t, 0)
	if !bytes.Equal(resp.Payload, []byte{9, 8, 7}) {
		t.Errorf("payload = %v", resp.Payload)
	}
}

func TestTransportHandlerPanic(t *testing.T) {
	var out captured
	tr := NewTransport(0, func(req *Message, out OutputBuffer) uint8 {
		panic("boom")
	}, out.transmit)

	tr.Receive(NewSliceInputBuffer(encode(t, Message{Address: 0, Command: 0x13})))
	resp := out.decode(t, 0)
	if resp.Command != 0x93 {
		t.Errorf("expected error response 0x93, got 0x%02x", resp.Command)
	}
}

func TestTransportProcessQueuedIdle(t *testing.T) {
	tr := NewTransport(0, echoHandler, nil)
	if tr.ProcessQueued() {
		t.Error("ProcessQueued should report nothing to do")
	}
}

func TestTransportResetDropsPartialFrame(t *testing.T) {
	var out captured
	resets := 0
	tr := NewTransport(0, echoHandler, out.transmit)
	tr.SetResetCallback(func() { resets++ })

	frame := encode(t, Message{Address: 0, Command: 0x01, Payload: []byte{1, 2}})
	tr.Receive(NewSliceInputBuffer(frame[:4]))
	tr.Reset()
	tr.Receive(NewSliceInputBuffer(frame))

	if resets != 1 {
		t.Errorf("expected reset callback once, got %d", resets)
	}
	if len(out.frames) != 1 {
		t.Fatalf("expected one response, got %d", len(out.frames))
	}
}

func TestTransportOverlongResponse(t *testing.T) {
	var out captured
	tr := NewTransport(1, func(req *Message, o OutputBuffer) uint8 {
		o.Output(make([]byte, MaxPayload))
		o.Output([]byte{1})
		return req.Command
	}, out.transmit)

	tr.Receive(NewSliceInputBuffer(encode(t, Message{Address: 1, Command: 0x05})))

	resp := out.decode(t, 0)
	if !resp.IsError() || string(resp.Payload) != "Response too long" {
		t.Errorf("response %#x %q", resp.Command, resp.Payload)
	}
}
