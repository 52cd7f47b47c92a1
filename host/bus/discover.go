package bus

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"sorterfw/host/serial"
	"sorterfw/protocol"
)

// Default scan range; buses carry only a few boards
const (
	DefaultMinAddress = 0
	DefaultMaxAddress = 15

	// ScanTimeout is the per-address ping timeout used while scanning
	ScanTimeout = 50 * time.Millisecond
)

// Scan pings every address in [minAddr, maxAddr] and returns those that
// answered. Silent addresses are skipped; any other failure is returned
// alongside the addresses found so far.
func (b *Bus) Scan(minAddr, maxAddr uint8) ([]uint8, error) {
	var found []uint8
	var errs error
	for addr := int(minAddr); addr <= int(maxAddr); addr++ {
		err := b.Device(uint8(addr)).Ping(nil)
		switch {
		case err == nil:
			found = append(found, uint8(addr))
		case errors.Is(err, protocol.ErrTimeout):
		default:
			errs = multierr.Append(errs, err)
		}
	}
	return found, errs
}

// Opener opens a port by device name
type Opener func(device string) (io.ReadWriteCloser, error)

// OpenSerial opens device with the default interface board settings
func OpenSerial(device string) (io.ReadWriteCloser, error) {
	return serial.Open(serial.DefaultConfig(device))
}

// PortScan is the result of scanning one port
type PortScan struct {
	Port      string
	Addresses []uint8
}

// Discover scans each port for boards. Ports that fail to open or scan are
// reported in the combined error and omitted from the result.
func Discover(ports []string, open Opener, minAddr, maxAddr uint8) ([]PortScan, error) {
	var results []PortScan
	var errs error
	for _, name := range ports {
		port, err := open(name)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "port %s", name))
			continue
		}
		b := New(port)
		b.Timeout = ScanTimeout
		found, err := b.Scan(minAddr, maxAddr)
		errs = multierr.Combine(errs, errors.Wrapf(err, "port %s", name), b.Close())
		if len(found) > 0 {
			results = append(results, PortScan{Port: name, Addresses: found})
		}
	}
	return results, errs
}
