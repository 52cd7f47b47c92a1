package serial

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
)

// USB IDs of the Pico SDK CDC serial interface
const (
	RP2040VendorID  = "2E8A"
	RP2040ProductID = "000A"
)

// PortInfo describes one serial port found on the host
type PortInfo struct {
	Name         string
	USB          bool
	VID          string
	PID          string
	SerialNumber string
}

// IsInterfaceBoard reports whether the port is an RP2040 CDC serial interface
func (p PortInfo) IsInterfaceBoard() bool {
	return p.USB && strings.EqualFold(p.VID, RP2040VendorID) && strings.EqualFold(p.PID, RP2040ProductID)
}

// ListPorts enumerates the host's serial ports, sorted by name
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate serial ports")
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			USB:          d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// InterfaceBoards returns the names of ports that look like interface boards
func InterfaceBoards() ([]string, error) {
	ports, err := ListPorts()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, p := range ports {
		if p.IsInterfaceBoard() {
			names = append(names, p.Name)
		}
	}
	return names, nil
}
