package serialport

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// Native adapts github.com/tarm/serial to the byte-wise Port contract.
// Readable is approximated with a short, non-blocking-ish read attempt
// against the port's own configured read timeout; a hard I/O error latches
// so subsequent Getc/Putc calls fail fast instead of retrying a dead link.
type Native struct {
	port    *serial.Port
	name    string
	baud    int
	broken  bool
	pending []byte // at most one byte consumed by Readable's peek, awaiting Getc
}

// Open opens a native serial port at the given device path and baud rate.
// readTimeout bounds how long a single Read blocks when no bytes are
// pending; it should be small relative to the frame codec's own
// SERIAL_WAIT_TIMEOUT polling budget.
func Open(device string, baud int, readTimeout time.Duration) (*Native, error) {
	cfg := &serial.Config{Name: device, Baud: baud, ReadTimeout: readTimeout}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return &Native{port: p, name: device, baud: baud}, nil
}

// Readable attempts a single zero-or-more-byte peek. tarm/serial exposes no
// direct "bytes pending" call, so a one-byte read bounded by the port's
// configured timeout stands in for it; a byte read this way is buffered and
// returned by the next Getc.
func (n *Native) Readable() bool {
	if n.broken {
		return false
	}
	if len(n.pending) > 0 {
		return true
	}
	buf := make([]byte, 1)
	nRead, err := n.port.Read(buf)
	if err != nil {
		n.broken = true
		return false
	}
	if nRead > 0 {
		n.pending = append(n.pending, buf[0])
		return true
	}
	return false
}

func (n *Native) Getc() (byte, bool) {
	if len(n.pending) > 0 {
		b := n.pending[0]
		n.pending = n.pending[1:]
		return b, true
	}
	if n.broken {
		return 0, false
	}
	buf := make([]byte, 1)
	nRead, err := n.port.Read(buf)
	if err != nil || nRead == 0 {
		n.broken = true
		return 0, false
	}
	return buf[0], true
}

func (n *Native) Putc(b byte) bool {
	if n.broken {
		return false
	}
	if _, err := n.port.Write([]byte{b}); err != nil {
		n.broken = true
		return false
	}
	return true
}

func (n *Native) WaitUs(micros int) {
	time.Sleep(time.Duration(micros) * time.Microsecond)
}

// Close releases the underlying serial port.
func (n *Native) Close() error {
	if n.port == nil {
		return nil
	}
	return n.port.Close()
}
