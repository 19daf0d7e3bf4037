package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// ErrPortClosed is returned by the mock ports after Close.
var ErrPortClosed = errors.New("serial port closed")

// MockSerialPort is an in-memory SerialPorter. Lines passed to Emit become
// readable in order; each command written can trigger reply lines through
// Respond.
type MockSerialPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	// Respond, if set, returns the lines to emit in reply to one command
	// (without its newline).
	Respond func(command string) []string

	mu      sync.Mutex
	written bytes.Buffer
	partial string
	closed  bool
	done    chan struct{}
}

// NewMockSerialPort creates an open mock port.
func NewMockSerialPort(respond func(command string) []string) *MockSerialPort {
	r, w := io.Pipe()
	return &MockSerialPort{r: r, w: w, Respond: respond, done: make(chan struct{})}
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	return m.r.Read(p)
}

// Write records p and schedules replies for every complete command in it.
func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrPortClosed
	}
	m.written.Write(p)
	buf := m.partial + string(p)
	lines := strings.Split(buf, "\n")
	m.partial = lines[len(lines)-1]
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		var replies []string
		for _, cmd := range lines[:len(lines)-1] {
			replies = append(replies, respond(strings.TrimSpace(cmd))...)
		}
		if len(replies) > 0 {
			// the pipe blocks until read, so replies are delivered off the
			// writer's goroutine
			go func() {
				for _, line := range replies {
					if err := m.Emit(line); err != nil {
						return
					}
				}
			}()
		}
	}
	return len(p), nil
}

// Emit makes line readable, blocking until a reader has consumed it.
func (m *MockSerialPort) Emit(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err := m.w.Write([]byte(line))
	if errors.Is(err, io.ErrClosedPipe) {
		return ErrPortClosed
	}
	return err
}

// Play emits lines every interval, looping over them until the port is
// closed. It returns immediately.
func (m *MockSerialPort) Play(lines []string, interval time.Duration) {
	if len(lines) == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(lines) {
			select {
			case <-m.done:
				return
			case <-ticker.C:
			}
			if err := m.Emit(lines[i]); err != nil {
				return
			}
		}
	}()
}

// Written returns everything written to the port.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

// Close unblocks readers with io.EOF and stops playback.
func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.w.Close()
	return nil
}

// NewMockSerialMux creates a SerialMux backed by a mock port that replays
// lines every interval.
func NewMockSerialMux(lines []string, interval time.Duration) *SerialMux[*MockSerialPort] {
	port := NewMockSerialPort(nil)
	port.Play(lines, interval)
	return NewSerialMux(port)
}

// TestableSerialPort implements SerialPorter with configurable behaviour for
// testing. It provides control over reads, writes and errors.
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

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Read reads from the read buffer, optionally simulating errors. A drained
// non-blocking port reports io.EOF.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, ErrPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.BlockReads {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if t.Closed {
			return 0, io.EOF
		}
	}

	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, ErrPortClosed
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

// Close marks the port as closed and wakes blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Signal()
}

// GetWrittenData returns a copy of all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}
