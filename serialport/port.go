// Package serialport defines the byte-wise port contract the frame codec
// polls, and concrete adapters over it.
package serialport

// Port abstracts the serial link exactly at the granularity the frame
// codec needs: single-byte transfer, a non-blocking readability test, and a
// microsecond-resolution wait. It is the one required collaborator the core
// never implements itself.
type Port interface {
	// Readable reports whether at least one byte can be consumed without
	// blocking.
	Readable() bool

	// Getc consumes one byte. ok is false on a hard read error.
	Getc() (b byte, ok bool)

	// Putc transmits one byte. It returns false on a hard write error.
	Putc(b byte) bool

	// WaitUs blocks the caller for approximately the given number of
	// microseconds.
	WaitUs(micros int)
}
