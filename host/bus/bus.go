// Package bus is the host-side client for sorter interface boards. A Bus owns
// one serial link; Devices address individual boards on it.
package bus

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"sorterfw/core"
	"sorterfw/host/serial"
	"sorterfw/protocol"
)

// Bus is a serial link shared by one or more boards
type Bus struct {
	transport *protocol.HostTransport

	// Timeout bounds each request/response exchange
	Timeout time.Duration
}

// New starts a bus client on an already open port
func New(port io.ReadWriteCloser) *Bus {
	return &Bus{
		transport: protocol.NewHostTransport(port),
		Timeout:   protocol.DefaultResponseTimeout,
	}
}

// Open opens the serial device described by cfg and starts a bus client on it
func Open(cfg *serial.Config) (*Bus, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port), nil
}

// Close stops the reader and closes the port
func (b *Bus) Close() error {
	return b.transport.Close()
}

// Dropped returns the number of corrupt or unexpected frames seen so far
func (b *Bus) Dropped() uint32 {
	return b.transport.Dropped()
}

// Device returns a client for the board at address
func (b *Bus) Device(address uint8) *Device {
	return &Device{bus: b, Address: address}
}

// CommandError is a response with the error flag set
type CommandError struct {
	Address uint8
	Command uint8
	Channel uint8
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("device %d: command 0x%02x channel %d: %s", e.Address, e.Command, e.Channel, e.Message)
}

// Device is one board on the bus
type Device struct {
	bus     *Bus
	Address uint8
}

// Exchange sends one command and returns the response payload. A response
// with the error flag set becomes a *CommandError.
func (d *Device) Exchange(cmd, ch uint8, payload []byte) ([]byte, error) {
	req := &protocol.Message{
		Address: d.Address,
		Command: cmd,
		Channel: ch,
		Payload: payload,
	}
	resp, err := d.bus.transport.Exchange(req, d.bus.Timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "device %d", d.Address)
	}
	if resp.IsError() {
		return nil, &CommandError{
			Address: d.Address,
			Command: cmd,
			Channel: ch,
			Message: string(resp.Payload),
		}
	}
	return resp.Payload, nil
}

func (d *Device) call(table, index, ch uint8, payload []byte) ([]byte, error) {
	return d.Exchange(protocol.MakeCommand(table, index), ch, payload)
}

// Init reinitializes the board and returns its identity
func (d *Device) Init() (*core.Identity, error) {
	resp, err := d.call(core.TableBase, core.CmdInit, 0, nil)
	if err != nil {
		return nil, err
	}
	var id core.Identity
	if err := json.Unmarshal(resp, &id); err != nil {
		return nil, errors.Wrapf(err, "device %d: parse identity %q", d.Address, resp)
	}
	return &id, nil
}

// Ping sends data and checks that the board echoes it back unchanged
func (d *Device) Ping(data []byte) error {
	resp, err := d.call(core.TableBase, core.CmdPing, 0, data)
	if err != nil {
		return err
	}
	if string(resp) != string(data) {
		return errors.Errorf("device %d: ping echoed %q, sent %q", d.Address, resp, data)
	}
	return nil
}

// maxLogReads bounds ReadLog when the device logs as fast as it is drained
const maxLogReads = 64

// ReadLog drains the device debug log
func (d *Device) ReadLog() ([]byte, error) {
	var log []byte
	for i := 0; i < maxLogReads; i++ {
		resp, err := d.call(core.TableBase, core.CmdGetLog, 0, nil)
		if err != nil {
			return log, err
		}
		if len(resp) == 0 {
			break
		}
		log = append(log, resp...)
	}
	return log, nil
}

// args builds a little-endian payload
type args struct {
	out *protocol.ScratchOutput
}

func newArgs() args { return args{out: protocol.NewScratchOutput()} }

func (a args) i32(v int32) args { protocol.EncodeInt32(a.out, v); return a }
func (a args) u32(v uint32) args { protocol.EncodeUint32(a.out, v); return a }
func (a args) u16(v uint16) args { protocol.EncodeUint16(a.out, v); return a }
func (a args) u8(v uint8) args { protocol.EncodeUint8(a.out, v); return a }
func (a args) bool(v bool) args { protocol.EncodeBool(a.out, v); return a }
func (a args) bytes() []byte { return append([]byte(nil), a.out.Result()...) }

func decodeBool(resp []byte) (bool, error) {
	v, err := protocol.DecodeBool(&resp)
	return v, errors.Wrap(err, "decode bool response")
}
