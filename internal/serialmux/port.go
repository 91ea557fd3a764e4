package serialmux

import "io"

// SerialPorter is what SerialMux needs from a port; go.bug.st/serial's
// Port and TestableSerialPort both satisfy it.
type SerialPorter interface {
	io.ReadWriteCloser
}
