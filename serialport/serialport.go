// Package serialport opens the byte stream to the CP bridge, either a local
// UART or a TCP serial server.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-mdb/cp"
)

// DefaultBaudRate is the bridge's factory speed.
const DefaultBaudRate = 115200

// Port is a closable cp.Port.
type Port interface {
	cp.Port
	Close() error
}

var _ Port = serial.Port(nil)

// Open opens the serial device name at baud, 8N1, with the given read timeout.
// A zero baud selects DefaultBaudRate.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	if name == "" {
		return nil, errors.New("serialport: empty port name")
	}
	if baud == 0 {
		baud = DefaultBaudRate
	}
	if _, err := cp.SpeedForBaud(baud); err != nil {
		return nil, fmt.Errorf("serialport: %w", err)
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serialport: set read timeout: %w", err)
	}

	return port, nil
}

// Dial connects to a TCP serial server at addr.
func Dial(ctx context.Context, addr string, readTimeout time.Duration) (Port, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("serialport: dial %s: %w", addr, err)
	}

	return cp.NewConnPort(conn, readTimeout), nil
}

// Ports lists the serial devices present on the host.
func Ports() ([]string, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}

	return names, nil
}
