package protocol

import "testing"

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})

	if buf.Available() != 5 {
		t.Errorf("Expected 5 bytes available, got %d", buf.Available())
	}

	buf.Pop(2)
	if buf.Available() != 3 || buf.Data()[0] != 3 {
		t.Errorf("After popping 2, got %v", buf.Data())
	}

	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("Pop past end should empty the buffer, got %d", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output([]byte{1, 2, 3})
	scratch.Output([]byte{4, 5})

	res := scratch.Result()
	if len(res) != 5 || res[0] != 1 || res[4] != 5 {
		t.Errorf("Result() = %v, want [1 2 3 4 5]", res)
	}

	scratch.Reset()
	if len(scratch.Result()) != 0 {
		t.Errorf("After reset, expected empty result, got %v", scratch.Result())
	}
}

func TestScratchOutputOverflow(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output(make([]byte, MessageMax-1))
	if scratch.Overflowed() {
		t.Fatal("unexpected overflow")
	}

	scratch.Output([]byte{1, 2})
	if !scratch.Overflowed() {
		t.Error("expected overflow to be reported")
	}
	if n := len(scratch.Result()); n != MessageMax {
		t.Errorf("expected result clamped to %d, got %d", MessageMax, n)
	}

	scratch.Reset()
	if scratch.Overflowed() {
		t.Error("Reset should clear the overflow flag")
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)
	if fifo.Available() != 0 || fifo.Free() != 9 {
		t.Errorf("New FIFO: %d available, %d free", fifo.Available(), fifo.Free())
	}

	if written := fifo.Write([]byte{1, 2, 3, 4, 5}); written != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", written)
	}

	if data := fifo.Data(); len(data) != 5 || data[0] != 1 || data[4] != 5 {
		t.Errorf("Data() = %v", data)
	}

	fifo.Pop(4)
	if fifo.Available() != 1 || fifo.Data()[0] != 5 {
		t.Errorf("After popping 4, got %v", fifo.Data())
	}

	// One slot stays reserved
	fifo.Reset()
	if written := fifo.Write(make([]byte, 12)); written != 9 {
		t.Errorf("Expected to write 9 bytes to size-10 FIFO, wrote %d", written)
	}
	if fifo.Free() != 0 {
		t.Errorf("Expected full FIFO, %d free", fifo.Free())
	}
}

func TestFifoBufferWrappedData(t *testing.T) {
	fifo := NewFifoBuffer(5)
	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Pop(2)
	fifo.Write([]byte{5, 6})

	data := fifo.Data()
	want := []byte{3, 4, 5, 6}
	if len(data) != len(want) {
		t.Fatalf("Data() = %v, want %v", data, want)
	}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("Data() = %v, want %v", data, want)
		}
	}
}
