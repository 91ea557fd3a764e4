package network

import (
	"fmt"
	"net"

	"github.com/banshee-data/gridmapper/internal/mapper"
)

// ScanSender writes scan datagrams to a fixed UDP destination.
type ScanSender struct {
	conn    *net.UDPConn
	address string
}

// NewScanSender dials address ("host:port").
func NewScanSender(address string) (*ScanSender, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create send connection: %w", err)
	}
	return &ScanSender{conn: conn, address: address}, nil
}

// Send encodes and writes one scan.
func (s *ScanSender) Send(scan mapper.Scan) error {
	data, err := EncodeScan(scan)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(data)
	return err
}

// HandleScan forwards scan so a sender can stand in for a ScanHandler.
// Send failures are reported as not applied.
func (s *ScanSender) HandleScan(scan mapper.Scan) bool {
	return s.Send(scan) == nil
}

// Close releases the socket.
func (s *ScanSender) Close() error { return s.conn.Close() }
