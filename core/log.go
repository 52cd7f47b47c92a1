package core

// LogBufferSize is the number of debug text bytes kept for GET_LOG
const LogBufferSize = 1024

// LogBuffer keeps the most recent debug output until the host reads it.
// When full the oldest bytes are overwritten. Writers and readers run with
// interrupts masked, so it takes no lock.
type LogBuffer struct {
	buf  [LogBufferSize]byte
	head int
	size int
}

// Println appends msg and a newline; usable as a DebugWriter
func (l *LogBuffer) Println(msg string) {
	for i := 0; i < len(msg); i++ {
		l.put(msg[i])
	}
	l.put('\n')
}

func (l *LogBuffer) put(c byte) {
	l.buf[l.head] = c
	l.head = (l.head + 1) % LogBufferSize
	if l.size < LogBufferSize {
		l.size++
	}
}

// Len returns the number of unread bytes
func (l *LogBuffer) Len() int {
	return l.size
}

// Read moves up to len(dst) of the oldest unread bytes into dst
func (l *LogBuffer) Read(dst []byte) int {
	start := (l.head - l.size + LogBufferSize) % LogBufferSize
	n := min(len(dst), l.size)
	for i := 0; i < n; i++ {
		dst[i] = l.buf[(start+i)%LogBufferSize]
	}
	l.size -= n
	return n
}
