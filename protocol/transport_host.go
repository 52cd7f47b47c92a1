package protocol

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTimeout = errors.New("response timeout")
	ErrStopped = errors.New("transport stopped")
)

// DefaultResponseTimeout bounds a single request/response exchange
const DefaultResponseTimeout = 500 * time.Millisecond

// HostTransport is the bus master side: it sends one request at a time and
// waits for the matching response frame.
type HostTransport struct {
	port io.ReadWriteCloser

	responseChan chan *Message
	writeMutex   sync.Mutex
	// serializes request/response pairs
	exchangeMutex sync.Mutex

	dropped atomic.Uint32

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewHostTransport creates a host transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Exchange sends req and returns the response from the same address for the
// same command. Stale responses from earlier timed-out requests are skipped.
func (t *HostTransport) Exchange(req *Message, timeout time.Duration) (*Message, error) {
	t.exchangeMutex.Lock()
	defer t.exchangeMutex.Unlock()

	t.drain()

	var buf [MaxFrameSize]byte
	frame, err := EncodeFrame(req, buf[:])
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if err := t.writeFrame(frame); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case resp := <-t.responseChan:
			if resp.Address != req.Address || resp.Command&^CommandErrorFlag != req.Command {
				t.dropped.Add(1)
				continue
			}
			return resp, nil
		case <-deadline.C:
			return nil, fmt.Errorf("command 0x%02x to address %d: %w", req.Command, req.Address, ErrTimeout)
		case <-t.stopChan:
			return nil, ErrStopped
		}
	}
}

func (t *HostTransport) writeFrame(frame []byte) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	// Leading delimiter flushes any partial frame on the device side
	if _, err := t.port.Write([]byte{FrameDelimiter}); err != nil {
		return err
	}
	n, err := t.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}
	return nil
}

func (t *HostTransport) drain() {
	for {
		select {
		case <-t.responseChan:
			t.dropped.Add(1)
		default:
			return
		}
	}
}

// readLoop splits the byte stream on delimiters and decodes each frame.
// Serial ports opened with a read timeout report an idle interval as
// (0, io.EOF), so only a closed port or Close ends the loop.
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	frame := make([]byte, 0, MaxFrameSize)
	discard := false
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		for _, c := range buffer[:n] {
			if c == FrameDelimiter {
				if len(frame) > 0 && !discard {
					t.dispatchFrame(frame)
				}
				frame = frame[:0]
				discard = false
				continue
			}
			if discard {
				continue
			}
			if len(frame) == MaxEncodedSize {
				// Oversized, drop until the next delimiter
				frame = frame[:0]
				discard = true
				t.dropped.Add(1)
				continue
			}
			frame = append(frame, c)
		}

		switch {
		case err == nil:
		case errors.Is(err, os.ErrClosed), errors.Is(err, io.ErrClosedPipe):
			return
		case errors.Is(err, io.EOF) && n == 0:
			// Read timeout
			time.Sleep(time.Millisecond)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) dispatchFrame(frame []byte) {
	scratch := make([]byte, MaxMessageSize)
	msg := &Message{}
	if err := DecodeFrame(frame, scratch, msg); err != nil {
		t.dropped.Add(1)
		return
	}
	select {
	case t.responseChan <- msg:
	default:
		t.dropped.Add(1)
	}
}

// Dropped returns the number of frames discarded as corrupt or unexpected
func (t *HostTransport) Dropped() uint32 {
	return t.dropped.Load()
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}
