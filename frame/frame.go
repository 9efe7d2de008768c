// Package frame implements the wire framing used between the host and the
// Atom module: SOF, big-endian length, payload, ones-complement checksum.
package frame

import (
	"errors"
	"fmt"

	"github.com/helium/carbon/serialport"
)

// SOF is the start-of-frame marker byte.
const SOF = 0x7E

const (
	waitTickUs = 500  // poll granularity while waiting for a byte
	WaitBudget = 2000 // SERIAL_WAIT_TIMEOUT: ticks of waitTickUs between bytes, ~1s
)

// Sentinel transport errors. The transaction engine folds all of these into
// a single COMMUNICATION outcome at the command boundary (spec §7); they are
// kept distinct here, and wrapped with %w, so a diagnostic caller can still
// tell them apart with errors.Is.
var (
	ErrTimeout   = errors.New("frame: inter-byte read timeout")
	ErrOverflow  = errors.New("frame: payload length exceeds buffer capacity")
	ErrChecksum  = errors.New("frame: checksum mismatch")
	ErrPortRead  = errors.New("frame: serial port read error")
	ErrPortWrite = errors.New("frame: serial port write error")
)

type decodeState int

const (
	stateSOF decodeState = iota
	stateLenHi
	stateLenLo
	statePayload
	stateChecksum
)

// Write encodes payload onto port as SOF | len_hi | len_lo | payload |
// checksum and returns the number of payload bytes written. A zero-length
// payload is a no-op (the caller never invokes this for an empty frame).
func Write(port serialport.Port, payload []byte) (int, error) {
	if len(payload) == 0 {
		return 0, nil
	}
	if !port.Putc(SOF) {
		return 0, fmt.Errorf("%w: sof", ErrPortWrite)
	}
	ln := len(payload)
	if !port.Putc(byte(ln >> 8)) {
		return 0, fmt.Errorf("%w: length high byte", ErrPortWrite)
	}
	if !port.Putc(byte(ln & 0xFF)) {
		return 0, fmt.Errorf("%w: length low byte", ErrPortWrite)
	}

	var sum byte
	written := 0
	for _, b := range payload {
		if !port.Putc(b) {
			return written, fmt.Errorf("%w: payload byte %d", ErrPortWrite, written)
		}
		sum += b
		written++
	}

	checksum := 0xFF - sum
	if !port.Putc(checksum) {
		return written, fmt.Errorf("%w: checksum", ErrPortWrite)
	}
	return written, nil
}

// Read decodes a single frame from port into buf, returning the payload
// length. It blocks byte-by-byte, never resynchronizing mid-frame: garbage
// before SOF is discarded, but a malformed length or checksum aborts the
// frame with an error rather than hunting for the next SOF.
func Read(port serialport.Port, buf []byte) (int, error) {
	state := stateSOF
	var payloadLen, remaining, pos int
	var sum byte

	for waitForByte(port) {
		b, ok := port.Getc()
		if !ok {
			return 0, fmt.Errorf("%w", ErrPortRead)
		}

		switch state {
		case stateSOF:
			if b == SOF {
				state = stateLenHi
			}
		case stateLenHi:
			payloadLen = int(b) << 8
			state = stateLenLo
		case stateLenLo:
			payloadLen += int(b)
			if payloadLen > len(buf) {
				return 0, fmt.Errorf("%w: %d > %d", ErrOverflow, payloadLen, len(buf))
			}
			remaining = payloadLen
			pos = 0
			if remaining == 0 {
				sum = 0xFF - sum
				state = stateChecksum
			} else {
				state = statePayload
			}
		case statePayload:
			buf[pos] = b
			sum += b
			pos++
			remaining--
			if remaining == 0 {
				sum = 0xFF - sum
				state = stateChecksum
			}
		case stateChecksum:
			if b == sum {
				return payloadLen, nil
			}
			return 0, ErrChecksum
		}
	}
	return 0, ErrTimeout
}

// waitForByte polls Readable, sleeping waitTickUs between checks, up to
// WaitBudget ticks (~1s). It returns false on exhaustion.
func waitForByte(port serialport.Port) bool {
	for i := 0; i < WaitBudget; i++ {
		if port.Readable() {
			return true
		}
		port.WaitUs(waitTickUs)
	}
	return false
}
