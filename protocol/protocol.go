// Package protocol implements the sorter bus framing: a 4-byte header,
// little-endian payload and CRC-32 trailer, COBS-encoded and delimited by 0x00.
package protocol

// Version is the firmware version reported by INIT
const Version = "1.0"

// Frame layout constants
const (
	HeaderSize     = 4   // address, command, channel, payload length
	TrailerSize    = 4   // CRC-32, little endian
	MinMessageSize = HeaderSize + TrailerSize
	MaxMessageSize = 254 // decoded size limit (single COBS block)
	MaxPayload     = MaxMessageSize - HeaderSize - TrailerSize

	// Encoded frame: COBS overhead plus the 0x00 delimiter
	MaxEncodedSize = MaxMessageSize + MaxMessageSize/254 + 1
	MaxFrameSize   = MaxEncodedSize + 1

	// MessageMax sizes scratch output buffers
	MessageMax = MaxPayload

	FrameDelimiter = 0x00
)

// Command byte layout
const (
	CommandErrorFlag  = 0x80
	CommandTableMask  = 0x70
	CommandTableShift = 4
	CommandIndexMask  = 0x0F

	MaxTables        = 8
	CommandsPerTable = 16
)

// MakeCommand composes a command code from table and index
func MakeCommand(table, index uint8) uint8 {
	return (table<<CommandTableShift)&CommandTableMask | index&CommandIndexMask
}

// SplitCommand returns the table and index encoded in a command byte
func SplitCommand(cmd uint8) (table, index uint8) {
	return (cmd & CommandTableMask) >> CommandTableShift, cmd & CommandIndexMask
}
