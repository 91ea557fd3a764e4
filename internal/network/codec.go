// Package network receives laser scans as UDP datagrams, live or replayed
// from a packet capture, and hands them to the mapper.
package network

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/gridmapper/internal/mapper"
)

// ScanMagic prefixes every scan datagram.
const ScanMagic = "SCN1"

// scanHeaderSize is magic + unix nanos + five float32 fields + uint16 count.
const scanHeaderSize = 4 + 8 + 5*4 + 2

// MaxScanRanges is the most readings one datagram can carry.
const MaxScanRanges = math.MaxUint16

var (
	// ErrShortDatagram is returned when a datagram is smaller than its
	// header or its declared range count.
	ErrShortDatagram = errors.New("scan datagram truncated")
	// ErrBadMagic is returned for datagrams that are not scans.
	ErrBadMagic = errors.New("scan datagram has wrong magic")
)

// EncodeScan serialises s. Ranges are narrowed to float32; a zero
// timestamp is written as 0.
func EncodeScan(s mapper.Scan) ([]byte, error) {
	if len(s.Ranges) > MaxScanRanges {
		return nil, fmt.Errorf("scan has %d ranges, limit %d", len(s.Ranges), MaxScanRanges)
	}
	buf := make([]byte, scanHeaderSize+4*len(s.Ranges))
	copy(buf, ScanMagic)
	var nanos int64
	if !s.Timestamp.IsZero() {
		nanos = s.Timestamp.UnixNano()
	}
	binary.LittleEndian.PutUint64(buf[4:], uint64(nanos))
	off := 12
	for _, v := range []float64{s.AngleMin, s.AngleMax, s.AngleIncrement, s.RangeMin, s.RangeMax} {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
		off += 4
	}
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(s.Ranges)))
	off += 2
	for _, r := range s.Ranges {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(r)))
		off += 4
	}
	return buf, nil
}

// DecodeScan parses one datagram. Bytes after the declared ranges are
// ignored. A zero timestamp decodes to the zero time.
func DecodeScan(data []byte) (mapper.Scan, error) {
	if len(data) < scanHeaderSize {
		return mapper.Scan{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrShortDatagram, len(data), scanHeaderSize)
	}
	if !bytes.Equal(data[:4], []byte(ScanMagic)) {
		return mapper.Scan{}, fmt.Errorf("%w: %q", ErrBadMagic, data[:4])
	}

	var s mapper.Scan
	if nanos := int64(binary.LittleEndian.Uint64(data[4:])); nanos != 0 {
		s.Timestamp = time.Unix(0, nanos).UTC()
	}
	f := func(off int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
	}
	s.AngleMin = f(12)
	s.AngleMax = f(16)
	s.AngleIncrement = f(20)
	s.RangeMin = f(24)
	s.RangeMax = f(28)

	count := int(binary.LittleEndian.Uint16(data[32:]))
	if need := scanHeaderSize + 4*count; len(data) < need {
		return mapper.Scan{}, fmt.Errorf("%w: %d ranges need %d bytes, got %d", ErrShortDatagram, count, need, len(data))
	}
	s.Ranges = make([]float64, count)
	for i := range s.Ranges {
		s.Ranges[i] = f(scanHeaderSize + 4*i)
	}
	return s, nil
}
