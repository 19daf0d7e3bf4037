package serialmux

import "io"

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// Opener opens the port at path. It lets the binary choose between a real
// device and a simulated one.
type Opener func(path string, opts PortOptions) (SerialPorter, error)
