package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/gridmapper/internal/mapper"
	"github.com/banshee-data/gridmapper/internal/monitoring"
)

// ScanHandler consumes decoded scans. It reports whether the scan was
// applied; *mapper.Node satisfies it.
type ScanHandler interface {
	HandleScan(scan mapper.Scan) bool
}

// ScanHandlerFunc adapts a function to ScanHandler.
type ScanHandlerFunc func(scan mapper.Scan) bool

func (f ScanHandlerFunc) HandleScan(scan mapper.Scan) bool { return f(scan) }

// maxDatagramSize covers MaxScanRanges readings plus the header.
const maxDatagramSize = scanHeaderSize + 4*MaxScanRanges

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address       string
	RcvBuf        int
	LogInterval   time.Duration
	Handler       ScanHandler
	Stats         *PacketStats
	SocketFactory UDPSocketFactory
}

// UDPListener receives scan datagrams and forwards them to a handler.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	handler     ScanHandler
	stats       *PacketStats
	factory     UDPSocketFactory

	dropLog *monitoring.Limiter

	mu   sync.Mutex
	conn UDPSocket
}

// NewUDPListener applies defaults to config.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	stats := config.Stats
	if stats == nil {
		stats = NewPacketStats()
	}
	logInterval := config.LogInterval
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	factory := config.SocketFactory
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		handler:     config.Handler,
		stats:       stats,
		factory:     factory,
		dropLog:     monitoring.NewLimiter(time.Second),
	}
}

// Stats returns the listener's counters.
func (l *UDPListener) Stats() *PacketStats { return l.stats }

// LocalAddr is the bound address once Start has opened the socket.
func (l *UDPListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start receives until ctx is cancelled and returns ctx.Err().
func (l *UDPListener) Start(ctx context.Context) error {
	if l.handler == nil {
		return errors.New("udp listener has no scan handler")
	}
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	log.Printf("Scan listener started on %s", conn.LocalAddr())

	go l.logStats(ctx)

	buffer := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			log.Print("Scan listener stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("UDP read error: %v", err)
			continue
		}
		if err := l.handlePacket(buffer[:n]); err != nil {
			l.dropLog.Logf("Dropping datagram from %v: %v", from, err)
		}
	}
}

func (l *UDPListener) handlePacket(packet []byte) error {
	return deliver(packet, l.handler, l.stats)
}

// deliver decodes one datagram and passes it on. It is shared with the
// capture replay path.
func deliver(packet []byte, h ScanHandler, stats *PacketStats) error {
	stats.AddPacket(len(packet))
	scan, err := DecodeScan(packet)
	if err != nil {
		stats.AddMalformed()
		return err
	}
	stats.AddScan(h.HandleScan(scan))
	return nil
}

func (l *UDPListener) logStats(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}
