package core

import (
	"errors"
	"sync"

	"sorterfw/protocol"
)

// PayloadVariable marks a command that accepts any payload length
const PayloadVariable = 0xFF

var (
	ErrTableInUse   = errors.New("command table slot already registered")
	ErrTableIndex   = errors.New("command table index out of range")
	ErrArgFormat    = errors.New("unknown argument format character")
	ErrCommandTaken = errors.New("command slot already registered")
)

// CommandHandler runs one command. args holds the request payload, already
// checked against the command's length; out receives the response payload.
// Handlers validate before writing any output: on error the response carries
// only the error text.
type CommandHandler func(ch uint8, args *[]byte, out protocol.OutputBuffer) error

// ChannelValidator reports whether a channel addresses an existing resource
type ChannelValidator func(ch uint8) bool

// Command describes one entry of a command table
type Command struct {
	Name string
	// Argument and return formats, one character per field:
	// i int32, I uint32, H uint16, B uint8, ? bool, * variable
	ArgFormat string
	RetFormat string
	// Expected payload length derived from ArgFormat, PayloadVariable for "*"
	PayloadLen   uint8
	ValidChannel ChannelValidator
	Handler      CommandHandler
}

// CommandTable groups up to 16 commands under one table index
type CommandTable struct {
	Prefix   string
	Commands [protocol.CommandsPerTable]*Command
}

// Add places cmd at index, computing its payload length from ArgFormat
func (t *CommandTable) Add(index uint8, cmd Command) error {
	if int(index) >= len(t.Commands) {
		return ErrTableIndex
	}
	if t.Commands[index] != nil {
		return ErrCommandTaken
	}
	n, err := formatSize(cmd.ArgFormat)
	if err != nil {
		return err
	}
	cmd.PayloadLen = n
	t.Commands[index] = &cmd
	return nil
}

// formatSize returns the encoded size of a format string
func formatSize(format string) (uint8, error) {
	size := 0
	for i := 0; i < len(format); i++ {
		switch format[i] {
		case 'i', 'I':
			size += 4
		case 'H':
			size += 2
		case 'B', '?':
			size++
		case '*':
			return PayloadVariable, nil
		default:
			return 0, ErrArgFormat
		}
	}
	return uint8(size), nil
}

// CommandRegistry holds the command tables of a device
type CommandRegistry struct {
	mu     sync.RWMutex
	tables [protocol.MaxTables]*CommandTable
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{}
}

// Register installs a table at the given table index
func (r *CommandRegistry) Register(index uint8, table *CommandTable) error {
	if int(index) >= len(r.tables) {
		return ErrTableIndex
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables[index] != nil {
		return ErrTableInUse
	}
	r.tables[index] = table
	return nil
}

// Table returns the table at index, or nil
func (r *CommandRegistry) Table(index uint8) *CommandTable {
	if int(index) >= len(r.tables) {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables[index]
}

// Lookup resolves a command byte. The error flag is ignored.
func (r *CommandRegistry) Lookup(code uint8) (*Command, bool) {
	table, index := protocol.SplitCommand(code)
	t := r.Table(table)
	if t == nil || t.Commands[index] == nil || t.Commands[index].Handler == nil {
		return nil, false
	}
	return t.Commands[index], true
}

// Reset removes every table
func (r *CommandRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = [protocol.MaxTables]*CommandTable{}
}

// Dispatch validates req against its table entry and runs the handler with
// tick processing held off. It returns the response command byte.
func (r *CommandRegistry) Dispatch(req *protocol.Message, out protocol.OutputBuffer) uint8 {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	cmd, ok := r.Lookup(req.Command)
	if !ok {
		return commandError(req, out, "Invalid command "+itoa(int(req.Command)))
	}
	if cmd.PayloadLen != PayloadVariable && len(req.Payload) != int(cmd.PayloadLen) {
		return commandError(req, out, cmd.Name+": Invalid payload length "+
			itoa(len(req.Payload))+", expected "+itoa(int(cmd.PayloadLen)))
	}
	if cmd.ValidChannel != nil && !cmd.ValidChannel(req.Channel) {
		return commandError(req, out, cmd.Name+": Invalid channel "+itoa(int(req.Channel)))
	}

	args := req.Payload
	if err := cmd.Handler(req.Channel, &args, out); err != nil {
		return commandError(req, out, cmd.Name+": "+err.Error())
	}
	return req.Command
}

func commandError(req *protocol.Message, out protocol.OutputBuffer, msg string) uint8 {
	RecordTiming(EvtCommandErr, req.Channel, GetTime(), uint32(req.Command), 0)
	DebugPrintln("[CMD] " + msg)
	if len(msg) > protocol.MaxPayload {
		msg = msg[:protocol.MaxPayload]
	}
	out.Output([]byte(msg))
	return req.Command | protocol.CommandErrorFlag
}

// RegisterTable installs a table in the global registry
func RegisterTable(index uint8, table *CommandTable) error {
	return globalRegistry.Register(index, table)
}

// DispatchCommand dispatches through the global registry. Its signature
// matches protocol.MessageHandler.
func DispatchCommand(req *protocol.Message, out protocol.OutputBuffer) uint8 {
	return globalRegistry.Dispatch(req, out)
}

// GetGlobalRegistry returns the global command registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
