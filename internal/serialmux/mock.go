package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/ld2415h/internal/ld2415h"
)

// Responses of a factory-fresh LD2415H to a configuration request.
const (
	FakeFirmwareLine = "No.:20230801E v5.0"
	FakeConfigLine   = "X1:01 X2:00 X3:05 X4:01 X5:00 X6:00 X7:05 X8:03 X9:01 X0:01"
)

// FakeRadarPort simulates an LD2415H on the other end of a serial link. It
// emits the given velocity lines on a fixed interval, padded the way the real
// module pads its output, and answers configuration requests.
type FakeRadarPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer

	done      chan struct{}
	closeOnce sync.Once
}

// NewFakeRadarPort starts emitting readings every interval, cycling through
// them until the port is closed.
func NewFakeRadarPort(readings []string, interval time.Duration) *FakeRadarPort {
	r, w := io.Pipe()
	p := &FakeRadarPort{r: r, w: w, done: make(chan struct{})}

	go func() {
		// power-on noise seen on real hardware
		if _, err := w.Write([]byte("\xFF\xFF\r\n")); err != nil {
			return
		}
		if len(readings) == 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				if _, err := w.Write([]byte(readings[i%len(readings)] + "\r\n")); err != nil {
					return
				}
			}
		}
	}()
	return p
}

func (p *FakeRadarPort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// Write records b and, if it is a configuration request, queues the firmware
// and configuration responses.
func (p *FakeRadarPort) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, errors.New("serial port closed")
	default:
	}

	p.mu.Lock()
	p.written.Write(b)
	p.mu.Unlock()

	if bytes.Equal(b, ld2415h.ConfigRequestCommand()) {
		go func() {
			p.w.Write([]byte(FakeFirmwareLine + "\r\n"))
			p.w.Write([]byte(FakeConfigLine + "\r\n"))
		}()
	}
	return len(b), nil
}

// Written returns every byte written to the port so far.
func (p *FakeRadarPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

func (p *FakeRadarPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.w.Close()
		p.r.Close()
	})
	return nil
}

// NewMockSerialMux creates a SerialMux backed by a FakeRadarPort.
func NewMockSerialMux(readings []string, interval time.Duration, deviceOpts ...ld2415h.Option) *SerialMux[*FakeRadarPort] {
	return NewSerialMux(NewFakeRadarPort(readings, interval), deviceOpts...)
}

// TestableSerialPort implements SerialPorter with configurable behaviour for testing.
// It provides fine-grained control over reads, writes and errors.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes Write report one byte fewer than it was given
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	// readCond is used to signal blocked readers
	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort with blocking reads.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		BlockReads:  true,
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read reads from the read buffer, optionally blocking until data arrives.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.Closed {
			return 0, io.EOF
		}
		if t.ReadError != nil {
			err := t.ReadError
			t.ReadError = nil
			return 0, err
		}
		if t.ReadBuffer.Len() > 0 || !t.BlockReads {
			break
		}
		t.readCond.Wait()
	}

	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	n, err = t.WriteBuffer.Write(p)
	if t.ShortWrite && n > 0 {
		n--
	}
	return n, err
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast() // Wake up any blocked readers

	return t.CloseError
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// FailNextRead makes the next Read return err.
func (t *TestableSerialPort) FailNextRead(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadError = err
	t.readCond.Broadcast()
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}
