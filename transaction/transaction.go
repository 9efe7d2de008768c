// Package transaction implements the single-request/single-response
// exchange described in spec §5: assign a sequence number, encode, push a
// frame, pull a frame, decode, and fold every failure mode into one of the
// small set of outcomes a command can act on. There is no outstanding-
// transaction buffering and no background delivery; SendCommand blocks
// until the Atom module replies or the frame layer times out.
package transaction

import (
	"errors"
	"fmt"

	"github.com/helium/carbon/frame"
	"github.com/helium/carbon/heliumlog"
	"github.com/helium/carbon/heliummetrics"
	"github.com/helium/carbon/schema"
	"github.com/helium/carbon/serialport"
)

// Status is the outcome of a single transaction, folding the frame layer's
// distinct error modes down to the handful a command needs to branch on
// (spec §7). COMMUNICATION covers every transport failure: timeout,
// checksum mismatch, length overflow, or a port read/write error.
type Status int

const (
	StatusOK Status = iota
	StatusCommunication
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusCommunication:
		return "COMMUNICATION"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors wrapping the underlying frame-layer cause, so a
// diagnostic caller can still classify with errors.Is while command code
// only ever sees the folded Status.
var (
	ErrEncode = errors.New("transaction: encode failed")
	ErrDecode = errors.New("transaction: decode failed")
)

// maxEncodedLen bounds a single encoded Transaction: 5 bytes of record
// header (seq, needs_reset, cmd tag, dir) plus the largest body, a poll
// response carrying its tag, a length byte and up to 255 frame bytes.
const maxEncodedLen = 5 + 1 + 1 + 255

// Engine drives one SendCommand at a time over a single serial port. It is
// not safe for concurrent use by design (spec Non-goals: single-threaded
// session access); callers needing concurrency must serialize externally.
type Engine struct {
	port  serialport.Port
	codec schema.Codec
	seq   uint16

	wireBuf [maxEncodedLen]byte
}

// NewEngine creates an Engine bound to port, starting its sequence counter
// at zero.
func NewEngine(port serialport.Port) *Engine {
	return &Engine{port: port}
}

// SendCommand encodes req, performs one frame write/read round trip, and
// decodes the result into res. On any transport failure it returns
// StatusCommunication along with the underlying frame-layer error (still
// wrapped so errors.Is keeps working); res is left at whatever partial
// state Decode produced and callers must not inspect it unless Status is
// StatusOK.
func (e *Engine) SendCommand(req *schema.Transaction, res *schema.Transaction) (Status, error) {
	req.Seq = e.seq
	e.seq++

	n, err := e.codec.Encode(e.wireBuf[:], req)
	if err != nil {
		return StatusCommunication, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	if _, err := frame.Write(e.port, e.wireBuf[:n]); err != nil {
		recordFrameErr(req.Seq, err)
		return StatusCommunication, err
	}
	heliummetrics.IncFramesWritten()

	readBuf := make([]byte, len(e.wireBuf))
	rn, err := frame.Read(e.port, readBuf)
	if err != nil {
		recordFrameErr(req.Seq, err)
		return StatusCommunication, err
	}
	heliummetrics.IncFramesRead()

	if err := e.codec.Decode(readBuf[:rn], res); err != nil {
		return StatusCommunication, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return StatusOK, nil
}

// recordFrameErr classifies a frame-layer failure and bumps the matching
// heliummetrics counter, so a checksum mismatch and an inter-byte timeout
// are distinguishable on the metrics endpoint even though both fold into
// StatusCommunication here.
func recordFrameErr(seq uint16, err error) {
	label := heliummetrics.ClassifyErr(err)
	switch label {
	case heliummetrics.ErrChecksum:
		heliummetrics.IncChecksumErrors()
	case heliummetrics.ErrTimeout:
		heliummetrics.IncFrameTimeouts()
	}
	heliumlog.ForSeq(seq).Debug("frame_error", "class", label, "error", err)
}
