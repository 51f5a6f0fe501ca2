package zaber

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// TCPPrefix marks ports reached over TCP.
const TCPPrefix = "tcp://"

// Serial defaults.
const (
	DefaultBaud = 115200

	// serialReadTimeout lets a blocked serial read return so Close is
	// noticed.
	serialReadTimeout = 100 * time.Millisecond
)

// Port is an open byte stream to a device chain.
type Port interface {
	io.ReadWriteCloser
}

// Dialer opens a Port. It reports whether io.EOF from Read is a read
// timeout rather than the end of the stream.
type Dialer func(ctx context.Context, name string, baud int) (p Port, idleEOF bool, err error)

// IsTCP reports whether name is a TCP port.
func IsTCP(name string) bool {
	return strings.HasPrefix(name, TCPPrefix)
}

// Dial opens name as a TCP connection for tcp:// ports, and as a serial
// port otherwise.
func Dial(ctx context.Context, name string, baud int) (Port, bool, error) {
	if IsTCP(name) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(name, TCPPrefix))
		if err != nil {
			return nil, false, fmt.Errorf("failed to dial %s: %w", name, err)
		}
		return conn, false, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return port, true, nil
}
