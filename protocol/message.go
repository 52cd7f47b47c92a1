package protocol

import (
	"encoding/binary"
	"errors"
)

var (
	ErrFrameTooShort   = errors.New("frame too short")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrLengthMismatch  = errors.New("payload length mismatch")
	ErrCRCMismatch     = errors.New("crc mismatch")
)

// Message is one decoded bus message
type Message struct {
	Address uint8
	Command uint8
	Channel uint8
	Payload []byte
}

// IsError reports whether the error flag is set on the command byte
func (m *Message) IsError() bool {
	return m.Command&CommandErrorFlag != 0
}

// Marshal writes header, payload and CRC into dst and returns the used slice
func (m *Message) Marshal(dst []byte) ([]byte, error) {
	if len(m.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	n := HeaderSize + len(m.Payload) + TrailerSize
	if len(dst) < n {
		return nil, ErrPayloadTooLarge
	}
	dst[0] = m.Address
	dst[1] = m.Command
	dst[2] = m.Channel
	dst[3] = uint8(len(m.Payload))
	copy(dst[HeaderSize:], m.Payload)
	body := HeaderSize + len(m.Payload)
	binary.LittleEndian.PutUint32(dst[body:], CRC32(dst[:body]))
	return dst[:n], nil
}

// Unmarshal parses a decoded (un-stuffed) message. Payload aliases data.
func (m *Message) Unmarshal(data []byte) error {
	if len(data) < MinMessageSize {
		return ErrFrameTooShort
	}
	body := len(data) - TrailerSize
	if binary.LittleEndian.Uint32(data[body:]) != CRC32(data[:body]) {
		return ErrCRCMismatch
	}
	if int(data[3]) != body-HeaderSize {
		return ErrLengthMismatch
	}
	m.Address = data[0]
	m.Command = data[1]
	m.Channel = data[2]
	m.Payload = data[HeaderSize:body]
	return nil
}

// EncodeFrame marshals m, COBS-encodes it and appends the delimiter.
// dst must hold MaxFrameSize bytes.
func EncodeFrame(m *Message, dst []byte) ([]byte, error) {
	var raw [MaxMessageSize]byte
	body, err := m.Marshal(raw[:])
	if err != nil {
		return nil, err
	}
	n, err := COBSEncode(dst, body)
	if err != nil {
		return nil, err
	}
	if n >= len(dst) {
		return nil, ErrCOBSOverflow
	}
	dst[n] = FrameDelimiter
	return dst[:n+1], nil
}

// DecodeFrame decodes one encoded frame, with or without its trailing
// delimiter. scratch receives the decoded bytes and backs m.Payload.
func DecodeFrame(frame, scratch []byte, m *Message) error {
	if len(frame) > 0 && frame[len(frame)-1] == FrameDelimiter {
		frame = frame[:len(frame)-1]
	}
	n, err := COBSDecode(scratch, frame)
	if err != nil {
		return err
	}
	return m.Unmarshal(scratch[:n])
}
