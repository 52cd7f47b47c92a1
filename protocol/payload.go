package protocol

import (
	"encoding/binary"
	"errors"
)

var ErrShortPayload = errors.New("payload too short")

// Argument helpers for little-endian payload fields. Decoders consume bytes
// from the front of *data, like the handlers' argument parsing expects.

func DecodeUint8(data *[]byte) (uint8, error) {
	if len(*data) < 1 {
		return 0, ErrShortPayload
	}
	v := (*data)[0]
	*data = (*data)[1:]
	return v, nil
}

func DecodeBool(data *[]byte) (bool, error) {
	v, err := DecodeUint8(data)
	return v != 0, err
}

func DecodeUint16(data *[]byte) (uint16, error) {
	if len(*data) < 2 {
		return 0, ErrShortPayload
	}
	v := binary.LittleEndian.Uint16(*data)
	*data = (*data)[2:]
	return v, nil
}

func DecodeUint32(data *[]byte) (uint32, error) {
	if len(*data) < 4 {
		return 0, ErrShortPayload
	}
	v := binary.LittleEndian.Uint32(*data)
	*data = (*data)[4:]
	return v, nil
}

func DecodeInt32(data *[]byte) (int32, error) {
	v, err := DecodeUint32(data)
	return int32(v), err
}

func EncodeUint8(output OutputBuffer, v uint8) {
	output.Output([]byte{v})
}

func EncodeBool(output OutputBuffer, v bool) {
	if v {
		EncodeUint8(output, 1)
	} else {
		EncodeUint8(output, 0)
	}
}

func EncodeUint16(output OutputBuffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	output.Output(b[:])
}

func EncodeUint32(output OutputBuffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	output.Output(b[:])
}

func EncodeInt32(output OutputBuffer, v int32) {
	EncodeUint32(output, uint32(v))
}
