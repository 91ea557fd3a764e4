package serialmux

import (
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate suits the usual USB odometry bridges.
const DefaultBaudRate = 115200

// PortOptions describes how to open a real serial port. Zero fields mean
// 8 data bits, no parity, one stop bit at DefaultBaudRate.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

var parities = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

func parityCode(p string) (string, error) {
	p = strings.ToUpper(strings.TrimSpace(p))
	switch p {
	case "", "NONE":
		return "N", nil
	case "EVEN":
		return "E", nil
	case "ODD":
		return "O", nil
	}
	if _, ok := parities[p]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unsupported parity %q (want N, E or O)", p)
}

// ParseFraming reads the conventional "8N1" framing notation into the
// data bits, parity and stop bits of o.
func (o PortOptions) ParseFraming(framing string) (PortOptions, error) {
	f := strings.TrimSpace(framing)
	if len(f) != 3 {
		return o, fmt.Errorf("framing %q must look like 8N1", framing)
	}
	data, err := strconv.Atoi(f[:1])
	if err != nil {
		return o, fmt.Errorf("framing %q: bad data bits", framing)
	}
	stop, err := strconv.Atoi(f[2:])
	if err != nil {
		return o, fmt.Errorf("framing %q: bad stop bits", framing)
	}
	o.DataBits, o.Parity, o.StopBits = data, f[1:2], stop
	return o.Normalize()
}

// Normalize fills defaults and rejects unsupported settings.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("data bits %d out of range 5-8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("stop bits %d not supported (want 1 or 2)", o.StopBits)
	}
	p, err := parityCode(o.Parity)
	if err != nil {
		return o, err
	}
	o.Parity = p
	return o, nil
}

// SerialMode converts the options for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	stop := serial.OneStopBit
	if n.StopBits == 2 {
		stop = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		Parity:   parities[n.Parity],
		StopBits: stop,
	}, nil
}
