package frame

import (
	"errors"
	"testing"

	"github.com/helium/carbon/serialport"
)

func TestWrite_EncodesSOFLengthChecksum(t *testing.T) {
	// S1: payload 01 02 03 -> 7E 00 03 01 02 03 F9 (sum=0x06, checksum=0xF9)
	port := serialport.NewMock(nil)
	n, err := Write(port, []byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 3 {
		t.Fatalf("wrote %d payload bytes, want 3", n)
	}
	want := []byte{0x7E, 0x00, 0x03, 0x01, 0x02, 0x03, 0xF9}
	if string(port.Out) != string(want) {
		t.Fatalf("wire bytes = % X, want % X", port.Out, want)
	}
}

func TestWrite_ZeroLengthIsNoOp(t *testing.T) {
	port := serialport.NewMock(nil)
	n, err := Write(port, nil)
	if err != nil || n != 0 {
		t.Fatalf("Write(nil) = (%d, %v), want (0, nil)", n, err)
	}
	if len(port.Out) != 0 {
		t.Fatalf("expected no bytes written, got % X", port.Out)
	}
}

func TestRead_SkipsLeadingGarbage(t *testing.T) {
	// S2: AA BB 7E 00 01 2A D5 -> payload [2A], length 1 (checksum = 0xFF - 0x2A = 0xD5)
	port := serialport.NewMock([]byte{0xAA, 0xBB, 0x7E, 0x00, 0x01, 0x2A, 0xD5})
	buf := make([]byte, 64)
	n, err := Read(port, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 1 || buf[0] != 0x2A {
		t.Fatalf("Read = (%d, % X), want (1, 2A)", n, buf[:n])
	}
}

func TestRead_ChecksumFailure(t *testing.T) {
	// S3: 7E 00 01 2A D4 -> checksum error (correct checksum is D5)
	port := serialport.NewMock([]byte{0x7E, 0x00, 0x01, 0x2A, 0xD4})
	buf := make([]byte, 64)
	_, err := Read(port, buf)
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("err = %v, want ErrChecksum", err)
	}
}

func TestRead_LengthOverflow(t *testing.T) {
	port := serialport.NewMock([]byte{0x7E, 0x01, 0x00}) // len = 256
	buf := make([]byte, 16)
	_, err := Read(port, buf)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
}

func TestRead_Timeout(t *testing.T) {
	port := serialport.NewMock(nil) // never readable
	buf := make([]byte, 16)
	_, err := Read(port, buf)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if port.WaitedUs != WaitBudget*waitTickUs {
		t.Fatalf("waited %dus, want %dus", port.WaitedUs, WaitBudget*waitTickUs)
	}
}

func TestRoundTrip(t *testing.T) {
	// Invariant 1: decode(encode(S)) == S for varying lengths.
	for _, n := range []int{0, 1, 2, 16, 255, 512} {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i*7 + 3)
		}
		port := serialport.NewMock(nil)
		if _, err := Write(port, payload); err != nil {
			t.Fatalf("Write(len=%d): %v", n, err)
		}
		if n == 0 {
			continue // Write is a no-op for zero length; nothing to round-trip.
		}
		readPort := serialport.NewMock(port.Out)
		buf := make([]byte, 1024)
		got, err := Read(readPort, buf)
		if err != nil {
			t.Fatalf("Read(len=%d): %v", n, err)
		}
		if got != n || string(buf[:got]) != string(payload) {
			t.Fatalf("round trip mismatch at len=%d", n)
		}
	}
}

func TestRead_SingleBitFlipDetected(t *testing.T) {
	// Invariant 3: flipping any single payload or checksum bit causes a
	// checksum error, never a false success.
	payload := []byte{0x10, 0x20, 0x30, 0x40}
	port := serialport.NewMock(nil)
	if _, err := Write(port, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	base := port.Out
	for i := 3; i < len(base); i++ { // payload and checksum bytes only; header is indices 0..2
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(base))
			copy(mutated, base)
			mutated[i] ^= 1 << uint(bit)
			rp := serialport.NewMock(mutated)
			buf := make([]byte, 64)
			n, err := Read(rp, buf)
			if err == nil && string(buf[:n]) == string(payload) {
				t.Fatalf("bit flip at byte %d bit %d went undetected", i, bit)
			}
		}
	}
}
