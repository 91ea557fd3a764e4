package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/gridmapper/internal/mapper"
)

// ReplayOptions tunes ReplayPCAP.
type ReplayOptions struct {
	// Port selects UDP datagrams by destination port. Zero accepts any.
	Port int
	// Realtime sleeps between packets to reproduce capture timing.
	Realtime bool
	// Stats receives counts; nil allocates a private one.
	Stats *PacketStats
}

// ReplayPCAP reads a classic pcap stream and delivers every scan datagram
// it contains to h. Scans without a timestamp take the capture time.
func ReplayPCAP(ctx context.Context, r io.Reader, h ScanHandler, opts ReplayOptions) (StatsSnapshot, error) {
	stats := opts.Stats
	if stats == nil {
		stats = NewPacketStats()
	}
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("failed to open pcap stream: %w", err)
	}

	var (
		packetCount int
		firstCap    time.Time
		firstWall   time.Time
		start       = time.Now()
	)
	for {
		if err := ctx.Err(); err != nil {
			log.Printf("PCAP replay stopping due to context cancellation (processed %d packets)", packetCount)
			return stats.Snapshot(), err
		}

		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			log.Printf("PCAP replay complete: %d packets in %v", packetCount, time.Since(start))
			return stats.Snapshot(), nil
		}
		if err != nil {
			return stats.Snapshot(), fmt.Errorf("failed to read packet %d: %w", packetCount+1, err)
		}
		packetCount++

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}

		if opts.Realtime {
			if firstCap.IsZero() {
				firstCap, firstWall = ci.Timestamp, time.Now()
			} else if wait := ci.Timestamp.Sub(firstCap) - time.Since(firstWall); wait > 0 {
				select {
				case <-ctx.Done():
					return stats.Snapshot(), ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		stamped := stampingHandler{next: h, capture: ci.Timestamp}
		if err := deliver(udp.Payload, stamped, stats); err != nil {
			log.Printf("PCAP packet %d: %v", packetCount, err)
		}
	}
}

type stampingHandler struct {
	next    ScanHandler
	capture time.Time
}

func (s stampingHandler) HandleScan(scan mapper.Scan) bool {
	if scan.Timestamp.IsZero() {
		scan.Timestamp = s.capture
	}
	return s.next.HandleScan(scan)
}
