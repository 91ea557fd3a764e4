package serialmux

import (
	"bytes"
	"errors"
	"sync"
)

// TestableSerialPort is an in-memory SerialPorter. Reads block until data
// is added or the port is closed.
type TestableSerialPort struct {
	mu       sync.Mutex
	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	closed   bool
	eof      bool
	readCond *sync.Cond

	// WriteError is returned by the next Write call if set.
	WriteError error
}

var errPortClosed = errors.New("serial port closed")

// NewTestableSerialPort returns an empty port.
func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && !p.eof && p.readBuf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.closed {
		return 0, errPortClosed
	}
	// Buffer.Read returns io.EOF once drained, which ends a Scanner.
	return p.readBuf.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	return p.writeBuf.Write(b)
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCond.Broadcast()
	return nil
}

// AddReadData queues data for Read.
func (p *TestableSerialPort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.WriteString(data)
	p.readCond.Broadcast()
}

// EndOfInput makes Read return io.EOF once the queued data is consumed.
func (p *TestableSerialPort) EndOfInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eof = true
	p.readCond.Broadcast()
}

// Written returns everything written to the port.
func (p *TestableSerialPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}
