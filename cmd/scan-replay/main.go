// Command scan-replay feeds scan datagrams to a running mapper, either from
// a pcap capture or from a synthetic room.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/gridmapper/internal/mapper"
	"github.com/banshee-data/gridmapper/internal/network"
)

var (
	target    = flag.String("target", "127.0.0.1:9870", "UDP address of the mapper")
	pcapFile  = flag.String("pcap", "", "pcap file to replay (synthetic scans when empty)")
	pcapPort  = flag.Int("pcap-port", 9870, "UDP destination port to select in the pcap (0 = any)")
	realtime  = flag.Bool("realtime", true, "Pace pcap replay to capture timing")
	count     = flag.Int("count", 100, "Synthetic scans to send (0 = until interrupted)")
	rate      = flag.Float64("rate", 10, "Synthetic scans per second")
	rays      = flag.Int("rays", 360, "Rays per synthetic scan")
	roomSize  = flag.Float64("room", 4, "Side of the synthetic square room in metres")
	rangeMax  = flag.Float64("range-max", 10, "Synthetic sensor maximum range")
	stampScan = flag.Bool("stamp", true, "Stamp synthetic scans with the send time")
)

func main() {
	flag.Parse()

	sender, err := network.NewScanSender(*target)
	if err != nil {
		log.Fatalf("failed to open sender: %v", err)
	}
	defer sender.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *pcapFile != "" {
		f, err := os.Open(*pcapFile)
		if err != nil {
			log.Fatalf("failed to open pcap: %v", err)
		}
		defer f.Close()
		snap, err := network.ReplayPCAP(ctx, f, sender, network.ReplayOptions{Port: *pcapPort, Realtime: *realtime})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("replay failed: %v", err)
		}
		log.Printf("replayed %d datagrams (%d sent, %d malformed) to %s", snap.Packets, snap.Accepted, snap.Malformed, *target)
		return
	}

	if *rate <= 0 || *rays < 1 {
		log.Fatalf("rate and rays must be positive")
	}
	sent := sendSynthetic(ctx, sender, time.Duration(float64(time.Second) / *rate), *count)
	log.Printf("sent %d synthetic scans to %s", sent, *target)
}

func sendSynthetic(ctx context.Context, sender *network.ScanSender, interval time.Duration, n int) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for n == 0 || sent < n {
		var stamp time.Time
		if *stampScan {
			stamp = time.Now()
		}
		if err := sender.Send(roomScan(*rays, *roomSize, *rangeMax, stamp)); err != nil {
			log.Printf("send failed: %v", err)
		} else {
			sent++
		}
		select {
		case <-ctx.Done():
			return sent
		case <-ticker.C:
		}
	}
	return sent
}

// roomScan is a full sweep from the centre of a square room of side size.
// Walls beyond rangeMax read as +Inf.
func roomScan(n int, size, rangeMax float64, stamp time.Time) mapper.Scan {
	inc := 2 * math.Pi / float64(n)
	half := size / 2
	ranges := make([]float64, n)
	for i := range ranges {
		a := -math.Pi + float64(i)*inc
		// Distance to the nearest wall along a.
		r := math.Min(half/math.Max(math.Abs(math.Cos(a)), 1e-9), half/math.Max(math.Abs(math.Sin(a)), 1e-9))
		if r > rangeMax {
			r = math.Inf(1)
		}
		ranges[i] = r
	}
	return mapper.Scan{
		Ranges:         ranges,
		AngleMin:       -math.Pi,
		AngleMax:       math.Pi,
		AngleIncrement: inc,
		RangeMin:       0.05,
		RangeMax:       rangeMax,
		Timestamp:      stamp,
	}
}
