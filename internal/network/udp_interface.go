package network

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the part of *net.UDPConn the listener uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory opens UDP sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory opens sockets with net.ListenUDP. The returned
// *net.UDPConn satisfies UDPSocket directly.
type RealUDPSocketFactory struct{}

// ListenUDP opens a UDP socket.
func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket replays a fixed list of datagrams, then reports read
// timeouts until closed.
type MockUDPSocket struct {
	mu             sync.Mutex
	packets        [][]byte
	readIndex      int
	closed         bool
	readBufferSize int
	localAddr      *net.UDPAddr

	// SetReadBufferError is returned by SetReadBuffer if set.
	SetReadBufferError error
}

// NewMockUDPSocket returns a socket that yields packets in order.
func NewMockUDPSocket(packets ...[]byte) *MockUDPSocket {
	return &MockUDPSocket{
		packets:   packets,
		localAddr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7400},
	}
}

// ReadFromUDP returns the next queued packet.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if m.readIndex >= len(m.packets) {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.packets[m.readIndex]
	m.readIndex++
	return copy(b, pkt), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 40000}, nil
}

// SetReadBuffer records the requested size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetReadBufferError != nil {
		return m.SetReadBufferError
	}
	m.readBufferSize = bytes
	return nil
}

func (m *MockUDPSocket) SetReadDeadline(time.Time) error { return nil }

// Close marks the socket closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockUDPSocket) LocalAddr() net.Addr { return m.localAddr }

// Delivered reports how many queued packets have been read.
func (m *MockUDPSocket) Delivered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readIndex
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ReadBufferSize returns the last size passed to SetReadBuffer.
func (m *MockUDPSocket) ReadBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBufferSize
}

// MockUDPSocketFactory hands out one prepared socket.
type MockUDPSocketFactory struct {
	Socket *MockUDPSocket
	Error  error
}

// ListenUDP returns the prepared socket or Error.
func (f *MockUDPSocketFactory) ListenUDP(string, *net.UDPAddr) (UDPSocket, error) {
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
