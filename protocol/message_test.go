package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestCRC32CheckValue(t *testing.T) {
	if got := CRC32([]byte("123456789")); got != 0xCBF43926 {
		t.Errorf("CRC32 check value = 0x%08x, want 0xcbf43926", got)
	}
}

func TestMessageMarshalLayout(t *testing.T) {
	m := Message{Address: 3, Command: 0x10, Channel: 2, Payload: []byte{0xE8, 0x03, 0x00, 0x00}}
	buf := make([]byte, MaxMessageSize)
	raw, err := m.Marshal(buf)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	wantHeader := []byte{3, 0x10, 2, 4}
	if !bytes.Equal(raw[:HeaderSize], wantHeader) {
		t.Errorf("header = %x, want %x", raw[:HeaderSize], wantHeader)
	}
	if len(raw) != HeaderSize+4+TrailerSize {
		t.Fatalf("length = %d, want %d", len(raw), HeaderSize+4+TrailerSize)
	}
	crc := binary.LittleEndian.Uint32(raw[len(raw)-TrailerSize:])
	if crc != CRC32(raw[:len(raw)-TrailerSize]) {
		t.Error("trailer is not the little-endian CRC of header and payload")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{0x00},
		{0x00, 0x00, 0x00, 0x00},
		bytes.Repeat([]byte{0xAB}, MaxPayload),
		bytes.Repeat([]byte{0x00}, MaxPayload),
	}

	for _, p := range payloads {
		m := Message{Address: 0, Command: 0x41, Channel: 7, Payload: p}
		frameBuf := make([]byte, MaxFrameSize)
		frame, err := EncodeFrame(&m, frameBuf)
		if err != nil {
			t.Fatalf("EncodeFrame(len %d) failed: %v", len(p), err)
		}
		if frame[len(frame)-1] != FrameDelimiter {
			t.Fatal("frame does not end with delimiter")
		}
		if bytes.IndexByte(frame[:len(frame)-1], 0) >= 0 {
			t.Fatal("frame body contains a zero byte")
		}

		var got Message
		scratch := make([]byte, MaxMessageSize)
		if err := DecodeFrame(frame, scratch, &got); err != nil {
			t.Fatalf("DecodeFrame(len %d) failed: %v", len(p), err)
		}
		if got.Address != m.Address || got.Command != m.Command || got.Channel != m.Channel {
			t.Errorf("header mismatch: got %+v", got)
		}
		if !bytes.Equal(got.Payload, p) && !(len(got.Payload) == 0 && len(p) == 0) {
			t.Errorf("payload mismatch for len %d", len(p))
		}
	}
}

func TestMarshalRejectsLargePayload(t *testing.T) {
	m := Message{Payload: make([]byte, MaxPayload+1)}
	if _, err := m.Marshal(make([]byte, 512)); err != ErrPayloadTooLarge {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestUnmarshalErrors(t *testing.T) {
	good := Message{Address: 1, Command: 0x01, Payload: []byte{1, 2, 3}}
	raw, _ := good.Marshal(make([]byte, MaxMessageSize))

	corrupt := append([]byte(nil), raw...)
	corrupt[HeaderSize] ^= 0xFF

	badLen := append([]byte(nil), raw...)
	badLen[3] = 2
	binary.LittleEndian.PutUint32(badLen[len(badLen)-TrailerSize:], CRC32(badLen[:len(badLen)-TrailerSize]))

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", raw[:MinMessageSize-1], ErrFrameTooShort},
		{"crc", corrupt, ErrCRCMismatch},
		{"length field", badLen, ErrLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			if err := m.Unmarshal(tt.data); err != tt.want {
				t.Errorf("Unmarshal error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCommandByte(t *testing.T) {
	if got := MakeCommand(4, 1); got != 0x41 {
		t.Errorf("MakeCommand(4, 1) = 0x%02x, want 0x41", got)
	}
	table, index := SplitCommand(0x97)
	if table != 1 || index != 7 {
		t.Errorf("SplitCommand(0x97) = %d, %d; want 1, 7", table, index)
	}
	m := Message{Command: 0x90}
	if !m.IsError() {
		t.Error("expected error flag to be detected")
	}
}

func TestPayloadCodec(t *testing.T) {
	out := NewScratchOutput()
	EncodeInt32(out, -5000)
	EncodeUint32(out, 4000)
	EncodeUint16(out, 1800)
	EncodeUint8(out, 9)
	EncodeBool(out, true)

	want := []byte{
		0x78, 0xEC, 0xFF, 0xFF,
		0xA0, 0x0F, 0x00, 0x00,
		0x08, 0x07,
		0x09,
		0x01,
	}
	if !bytes.Equal(out.Result(), want) {
		t.Fatalf("encoded = %x, want %x", out.Result(), want)
	}

	data := append([]byte(nil), out.Result()...)
	i32, _ := DecodeInt32(&data)
	u32, _ := DecodeUint32(&data)
	u16, _ := DecodeUint16(&data)
	u8, _ := DecodeUint8(&data)
	b, err := DecodeBool(&data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if i32 != -5000 || u32 != 4000 || u16 != 1800 || u8 != 9 || !b {
		t.Errorf("decoded %d %d %d %d %v", i32, u32, u16, u8, b)
	}
	if len(data) != 0 {
		t.Errorf("expected all bytes consumed, %d left", len(data))
	}

	if _, err := DecodeUint16(&data); err != ErrShortPayload {
		t.Errorf("expected ErrShortPayload, got %v", err)
	}
}
